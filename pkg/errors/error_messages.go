package errors

// ErrorMessages holds a user-facing explanation for each error code
var ErrorMessages = map[int]string{
	ErrMissingURL:         "A playlist URL is required.",
	ErrMissingName:        "An output name is required.",
	ErrInvalidConcurrency: "Concurrency must be at least 1.",
	ErrInvalidRetries:     "The retry count cannot be negative.",
	ErrInvalidURL:         "The playlist URL could not be parsed. Check that it is an absolute http(s) URL.",
	ErrInvalidName:        "The output name must not contain path separators.",
	ErrInvalidFFmpegParam: "Extra ffmpeg parameters cannot override the input, output or overwrite flags.",

	ErrDirectoryCreationFailed: "Could not create a working directory. Check permissions and free space.",
	ErrSegmentWriteFailed:      "Could not write a segment to disk. Check permissions and free space.",
	ErrSegmentReadFailed:       "Could not read a downloaded segment back from disk.",
	ErrDirectoryLocked:         "Another download is already using this download directory.",

	ErrRequestCreationFailed: "Could not build the HTTP request.",
	ErrRequestFailed:         "Network error while contacting the server. Check your connection and try again.",
	ErrBadStatus:             "The server answered with an error status.",
	ErrBodyReadFailed:        "The connection dropped while receiving data.",
	ErrRequestTimeout:        "The server took too long to answer.",

	ErrManifestDecode:       "The playlist could not be parsed.",
	ErrManifestEmpty:        "The playlist does not contain any segment.",
	ErrUnsupportedKeyMethod: "The playlist uses an encryption method other than AES-128.",
	ErrKeyRotation:          "The playlist rotates encryption keys, which is not supported.",
	ErrNoVariant:            "The master playlist does not list any variant stream.",
	ErrKeyFetchFailed:       "The encryption key could not be downloaded.",

	ErrKeyLength:        "The encryption key must be exactly 16 bytes.",
	ErrCiphertextLength: "The encrypted segment is truncated.",
	ErrBadPadding:       "The segment could not be decrypted. The key may be wrong.",

	ErrRetriesExhausted: "A segment kept failing after every retry.",
	ErrSegmentFailed:    "The download stopped because a segment could not be fetched.",

	ErrSegmentMissing: "A segment file disappeared before assembly.",
	ErrConcatFailed:   "Could not join the segments into one stream.",
	ErrFFmpegMissing:  "FFmpeg was not found. Install it or pass its path with --ffmpeg.",
	ErrFFmpegFailed:   "FFmpeg could not remux the stream.",
	ErrFFmpegStart:    "FFmpeg could not be started.",

	ErrTaskListRead:        "The task list file could not be read.",
	ErrTaskListParse:       "The task list is not valid JSON.",
	ErrTaskFailed:          "The task failed.",
	ErrAllTasksFailed:      "Every task in the batch failed.",
	ErrTaskIndexOutOfRange: "The --index value is larger than the task list.",
	ErrTaskListEmpty:       "The task list contains no tasks.",
}

// GetErrorMessage returns the user-facing message for an error code
func GetErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "Unknown error."
}
