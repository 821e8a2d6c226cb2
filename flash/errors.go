package flash

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrClosed = errors.New("target session is not open")
var ErrRegionTooSmall = errors.New("region too small for the requested sample count")
var ErrEmptyPayload = errors.New("payload is empty")
var ErrEmptyRegion = errors.New("region size must be greater than zero")
var ErrRegionOverflow = errors.New("region runs past the end of the address space")

// Kind classifies a failure so callers can report it without inspecting
// messages
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindConnection
	KindErase
	KindWrite
	KindRead
	KindVerification
	KindFile
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown error",
	KindConfiguration: "configuration error",
	KindConnection:    "connection error",
	KindErase:         "erase error",
	KindWrite:         "write error",
	KindRead:          "read error",
	KindVerification:  "verification error",
	KindFile:          "file error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Error is a failure of one operation against the target, tagged with its
// kind. Addr is only meaningful for erase, read and write failures.
type Error struct {
	Kind Kind
	Op   string
	Addr uint32
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindErase, KindRead, KindWrite:
		return fmt.Sprintf("%s: %s at 0x%08X: %v", e.Kind, e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Cause lets errors.Cause walk through an Error
func (e *Error) Cause() error { return e.Err }

// ReadError is returned when a streamed read aborts part way. Transferred is
// the number of bytes already handed to the sink.
type ReadError struct {
	Addr        uint32
	Transferred uint32
	Err         error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: read at 0x%08X failed after %d byte(s): %v",
		KindRead, e.Addr, e.Transferred, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func (e *ReadError) Cause() error { return e.Err }

// VerificationError reports the first byte that read back differently from
// what was programmed
type VerificationError struct {
	Address  uint32
	Expected byte
	Actual   byte
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification fail at 0x%X (expected: 0x%02X, read: 0x%02X)",
		e.Address, e.Expected, e.Actual)
}

func configError(op string, err error) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: err}
}

func connectionError(op string, err error) error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

// KindOf will return the kind of the first classified error in the chain
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var ve *VerificationError
	if errors.As(err, &ve) {
		return KindVerification
	}
	var re *ReadError
	if errors.As(err, &re) {
		return KindRead
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}

	return KindUnknown
}

// IsKind reports whether err is classified as k
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}
