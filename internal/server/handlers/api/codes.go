package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeAccessDenied   = "E_ACCESS_DENIED"   // access denied

	// Sync errors
	CodeNotFound  = "E_NOT_FOUND" // the file or directory does not exist
	CodeIntegrity = "E_INTEGRITY" // a block did not match its checksum
	CodeCodec     = "E_CODEC"     // a payload could not be compressed or inflated
	CodeIO        = "E_IO"        // the server failed to read or write storage

	CodeVersionMismatch = "E_VERSION_MISMATCH" // client and server speak different protocol versions
)
