package apply

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the extraction engine's fatal error classes (spec
// section 7). It is string-backed so error messages remain readable in
// logs without a lookup table.
type ErrorKind string

// Recognized error kinds.
const (
	ErrInvalidParam      ErrorKind = "invalid_param"
	ErrPathDoesNotExist  ErrorKind = "path_does_not_exist"
	ErrNoMem             ErrorKind = "no_mem"
	ErrOpen              ErrorKind = "open"
	ErrStat              ErrorKind = "stat"
	ErrRead              ErrorKind = "read"
	ErrWrite             ErrorKind = "write"
	ErrReadLink          ErrorKind = "read_link"
	ErrMkDir             ErrorKind = "mkdir"
	ErrUnsupported       ErrorKind = "unsupported"
	ErrReparseFixupFailed ErrorKind = "reparse_fixup_failed"
	ErrNotARegularFile   ErrorKind = "not_a_regular_file"
	ErrNotPipable        ErrorKind = "not_pipable"
	ErrInvalidPipableWim ErrorKind = "invalid_pipable_wim"
	ErrInvalidImage      ErrorKind = "invalid_image"
	ErrXMLInconsistent   ErrorKind = "xml_inconsistent"
	ErrWimIsReadOnly     ErrorKind = "wim_is_read_only"
	ErrStreamHashMismatch ErrorKind = "stream_hash_mismatch"
)

// sentinels used by ValidateFlags; kept distinct from ErrorKind values so
// callers can match on the wrapped text if they don't care about kind.
var (
	errHardlinkSymlinkExclusive = errors.New("HARDLINK and SYMLINK flags are mutually exclusive")
	errACLFlagsExclusive        = errors.New("NO_ACLS and STRICT_ACLS flags are mutually exclusive")
	errRPFixFlagsExclusive      = errors.New("RPFIX and NORPFIX flags are mutually exclusive")
)

// Error is the engine's error type: a kind, the failing operation and path
// (when applicable), and the underlying cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, &Error{Kind: k}) by comparing kinds when the
// target is an *Error; the target's Op, Path and Err are not compared.
func (e *Error) Is(target error) bool {
	var k *Error
	if errors.As(target, &k) {
		return e.Kind == k.Kind
	}
	return false
}

// wrap builds an *Error, the engine's single error-construction path.
func wrap(kind ErrorKind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}
