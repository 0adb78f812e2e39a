package endpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/openmined/syftsync/internal/scan"
)

// Kind classifies failures crossing the endpoint boundary.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindPermission
	KindNotFound
	KindIntegrity
	KindCodec
	KindIO
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "invalid request"
	case KindPermission:
		return "permission denied"
	case KindNotFound:
		return "not found"
	case KindIntegrity:
		return "integrity check failed"
	case KindCodec:
		return "codec failure"
	case KindIO:
		return "i/o error"
	case KindBusy:
		return "busy"
	}
	return "internal error"
}

// Sentinels for errors.Is, matching any Error of the same kind.
var (
	ErrInternal   = &Error{Kind: KindInternal}
	ErrValidation = &Error{Kind: KindValidation}
	ErrPermission = &Error{Kind: KindPermission}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrIntegrity  = &Error{Kind: KindIntegrity}
	ErrCodec      = &Error{Kind: KindCodec}
	ErrIO         = &Error{Kind: KindIO}
	ErrBusy       = &Error{Kind: KindBusy}
)

type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		if e.Path != "" {
			sb.WriteString(" ")
			sb.WriteString(e.Path)
		}
		sb.WriteString(": ")
	}
	sb.WriteString(e.Kind.String())
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Path == "" && t.Err == nil && t.Kind == e.Kind
}

// E builds an Error. err may be nil.
func E(kind Kind, op, path string, err error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf builds an Error with a formatted cause.
func Errorf(kind Kind, op, path, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// fsError classifies a filesystem error.
func fsError(op, path string, err error) error {
	var e *Error
	switch {
	case errors.As(err, &e):
		return err
	case errors.Is(err, fs.ErrNotExist):
		return E(KindNotFound, op, path, err)
	case errors.Is(err, fs.ErrPermission):
		return E(KindPermission, op, path, err)
	case errors.Is(err, scan.ErrOutsideRoot), errors.Is(err, fs.ErrInvalid):
		return E(KindValidation, op, path, err)
	}
	return E(KindIO, op, path, err)
}
