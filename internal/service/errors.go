package service

import "errors"

// ErrUnauthorized means the caller presented no usable identity for an
// operation that requires one.
var ErrUnauthorized = errors.New("Unauthorized")

// ErrNotFound covers both a genuinely absent record and a record the
// caller may not see. The two are deliberately indistinguishable so a
// denied read cannot confirm that a file exists.
var ErrNotFound = errors.New("Not found")

// MissingFieldError is a required input that was not supplied.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "Missing " + e.Field
}

// InvalidStateError is a request that names real entities but asks for
// something semantically impossible, like reading a folder's content.
type InvalidStateError struct {
	Msg string
}

func (e *InvalidStateError) Error() string {
	return e.Msg
}
