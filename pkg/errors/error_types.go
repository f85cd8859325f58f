package errors

// InvalidKeyLength indicates an encryption key that is not 16 bytes long
const InvalidKeyLength ErrorType = "invalid_key_length"

// DecryptionError indicates bad padding or a ciphertext that is not block aligned
const DecryptionError ErrorType = "decryption_error"

// HTTPError indicates a non-success status or a transport failure
const HTTPError ErrorType = "http_error"

// Timeout indicates a request that ran past its deadline
const Timeout ErrorType = "timeout"

// ParseError indicates a malformed or unsupported manifest
const ParseError ErrorType = "parse_error"

// FetchError indicates a segment whose retries are exhausted
const FetchError ErrorType = "fetch_error"

// MissingSegment indicates a segment file absent at assembly time
const MissingSegment ErrorType = "missing_segment"

// AssembleError indicates the remux tool exited unsuccessfully
const AssembleError ErrorType = "assemble_error"

// TaskError wraps the failure of one task in a batch
const TaskError ErrorType = "task_error"
