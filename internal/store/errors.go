package store

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptRecord marks a record that cannot be read back from the
	// log: a length prefix inconsistent with the file size, or a payload
	// that fails to decode. Scans skip these; they are never fatal to a
	// caller iterating many offsets.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrNotFound indicates no live record carries the requested id.
	ErrNotFound = errors.New("record not found")
)

// IOError wraps a disk failure. It is fatal to the triggering call but
// never to the process.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func ioErr(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}
