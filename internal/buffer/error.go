package buffer

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/pgmock/pgmock/internal/wireerr"
	"github.com/pgmock/pgmock/internal/wirecodes"
)

// ErrMissingNulTerminator is thrown when no NUL terminator is found while
// reading a message field as a C-string.
var ErrMissingNulTerminator = errors.New("NUL terminator not found")

// NewMissingNulTerminator constructs a NUL-terminator error carrying the
// data-corrupted SQLSTATE code.
func NewMissingNulTerminator() error {
	return wireerr.WithSeverity(wireerr.WithCode(ErrMissingNulTerminator, wirecodes.DataCorrupted), wireerr.LevelFatal)
}

// ErrInsufficientData is thrown when a message has fewer bytes remaining
// than the field being decoded requires.
var ErrInsufficientData = errors.New("insufficient data")

// NewInsufficientData constructs an insufficient-data error annotated with
// the number of bytes that were actually available.
func NewInsufficientData(length int) error {
	err := fmt.Errorf("length: %d %w", length, ErrInsufficientData)
	return wireerr.WithSeverity(wireerr.WithCode(err, wirecodes.DataCorrupted), wireerr.LevelFatal)
}

// ErrMessageSizeExceeded is thrown when a declared frame length exceeds the
// configured maximum message size.
var ErrMessageSizeExceeded = MessageSizeExceeded{Message: "maximum message size exceeded"}

// MessageSizeExceeded carries the offending and maximum message sizes so
// callers can decide whether to drain and discard the oversized frame.
type MessageSizeExceeded struct {
	Message string
	Size    int
	Max     int
}

func (err MessageSizeExceeded) Error() string { return err.Message }

func (err MessageSizeExceeded) Is(target error) bool {
	return reflect.TypeOf(target) == reflect.TypeOf(err)
}

// NewMessageSizeExceeded constructs a MessageSizeExceeded error wrapped with
// its SQLSTATE code.
func NewMessageSizeExceeded(max, size int) error {
	err := MessageSizeExceeded{
		Message: fmt.Sprintf("message size %d, bigger than maximum allowed message size %d", size, max),
		Size:    size,
		Max:     max,
	}

	return wireerr.WithSeverity(wireerr.WithCode(err, wirecodes.ProgramLimitExceeded), wireerr.LevelError)
}

// UnwrapMessageSizeExceeded attempts to unwrap err as MessageSizeExceeded.
func UnwrapMessageSizeExceeded(err error) (result MessageSizeExceeded, _ bool) {
	return result, errors.As(err, &result)
}
