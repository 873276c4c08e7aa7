package domain

import "errors"

var (
	ErrInvalidVisitorID = errors.New("visitor id is required")
	ErrEmptyMessage     = errors.New("message body is required")
	ErrInvalidKind      = errors.New("message type not allowed")
	ErrForbiddenSender  = errors.New("sender not allowed for this session")
	ErrUnsupportedMedia = errors.New("file type not allowed")
	ErrFileTooLarge     = errors.New("file exceeds size limit")
	ErrMissingFile      = errors.New("no file uploaded")
	ErrInvalidMeta      = errors.New("invalid message meta")
	ErrInvalidPrice     = errors.New("price must be a positive number")
	ErrTooManyWords     = errors.New("short content must be 12 words or less")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
)

// IsValidation reports whether err is a client input error.
func IsValidation(err error) bool {
	for _, e := range []error{
		ErrInvalidVisitorID, ErrEmptyMessage, ErrInvalidKind, ErrForbiddenSender,
		ErrMissingFile, ErrInvalidMeta, ErrInvalidPrice, ErrTooManyWords,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
