package errors

// Error codes, grouped per component
const (
	// Options and configuration (1000-1099)
	ErrMissingURL         = 1000
	ErrMissingName        = 1001
	ErrInvalidConcurrency = 1002
	ErrInvalidRetries     = 1003
	ErrInvalidURL         = 1004
	ErrInvalidName        = 1005
	ErrInvalidFFmpegParam = 1006

	// Filesystem (1100-1199)
	ErrDirectoryCreationFailed = 1100
	ErrSegmentWriteFailed      = 1101
	ErrSegmentReadFailed       = 1102
	ErrDirectoryLocked         = 1103

	// Network (1200-1299)
	ErrRequestCreationFailed = 1200
	ErrRequestFailed         = 1201
	ErrBadStatus             = 1202
	ErrBodyReadFailed        = 1203
	ErrRequestTimeout        = 1204

	// Manifest (1300-1399)
	ErrManifestDecode       = 1300
	ErrManifestEmpty        = 1301
	ErrUnsupportedKeyMethod = 1302
	ErrKeyRotation          = 1303
	ErrNoVariant            = 1304
	ErrKeyFetchFailed       = 1305

	// Decryption (1400-1499)
	ErrKeyLength        = 1400
	ErrCiphertextLength = 1401
	ErrBadPadding       = 1402

	// Segment fetch (1500-1599)
	ErrRetriesExhausted = 1500
	ErrSegmentFailed    = 1501

	// Assembly (1600-1699)
	ErrSegmentMissing = 1600
	ErrConcatFailed   = 1601
	ErrFFmpegMissing  = 1602
	ErrFFmpegFailed   = 1603
	ErrFFmpegStart    = 1604

	// Tasks (1700-1799)
	ErrTaskListRead        = 1700
	ErrTaskListParse       = 1701
	ErrTaskFailed          = 1702
	ErrAllTasksFailed      = 1703
	ErrTaskIndexOutOfRange = 1704
	ErrTaskListEmpty       = 1705
)
