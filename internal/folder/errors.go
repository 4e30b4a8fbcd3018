package folder

import (
	"errors"
	"fmt"
)

// ErrNotFound matches every NotFoundError.
var ErrNotFound = errors.New("not found")

// ErrInvalidName is returned for names that would escape the folder.
var ErrInvalidName = errors.New("invalid file name")

type NotFoundError struct {
	Folder string
	Name   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s/%s", e.Folder, e.Name)
}

func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func errNotFound(folder, name string) error {
	return NotFoundError{Folder: folder, Name: name}
}

func errInvalidName(name string) error {
	return fmt.Errorf("%w: %q", ErrInvalidName, name)
}
