package errors

import stdErrors "errors"

// Is, As and New forward to the standard library so callers importing this
// package under the name errors keep the usual helpers.
func Is(err, target error) bool { return stdErrors.Is(err, target) }

func As(err error, target any) bool { return stdErrors.As(err, target) }

func New(text string) error { return stdErrors.New(text) }
