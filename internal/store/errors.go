package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when another record already holds the email.
var ErrDuplicateEmail = errors.New("email already exists")

// ErrDuplicateName is returned when another record already holds the name.
var ErrDuplicateName = errors.New("name already exists")
