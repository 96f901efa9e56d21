package qbank

import "errors"

var (
	// ErrPermissionDenied is returned when the caller lacks the bulk flag.
	ErrPermissionDenied = errors.New("caller is not permitted to use bulk operations")

	// ErrUnsupportedFormat is returned for a format name with no handler.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrFileTooLarge is returned when the upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file exceeds the maximum allowed size")

	// ErrRateLimited is returned when the caller exhausted their window.
	ErrRateLimited = errors.New("too many requests, slow down")
)

// Result codes carried on operation results so clients can branch without
// parsing messages.
const (
	CodeOK               = "ok"
	CodePermissionDenied = "permission_denied"
	CodeRateLimited      = "rate_limited"
	CodeBadFormat        = "unsupported_format"
	CodeFileTooLarge     = "file_too_large"
	CodeParseFailed      = "parse_failed"
	CodeExportFailed     = "export_failed"
)
