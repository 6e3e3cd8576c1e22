package buffer

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"unsafe"

	"github.com/pgmock/pgmock/internal/wiretypes"
)

// DefaultBufferSize is used whenever a non-positive buffer size is given to
// NewReader.
const DefaultBufferSize = 1 << 16 // 65536 bytes

// BufferedReader extends io.Reader with the convenience methods the frame
// reader needs from the underlying connection.
type BufferedReader interface {
	io.Reader
	ReadString(delim byte) (string, error)
	ReadByte() (byte, error)
}

// Reader decodes PostgreSQL wire protocol frames off of a buffered
// connection. A single Reader is reused across the lifetime of a
// connection; each call to ReadTypedMsg/ReadUntypedMsg overwrites Msg.
type Reader struct {
	logger         *slog.Logger
	Buffer         BufferedReader
	Msg            []byte
	MaxMessageSize int
	header         [4]byte
}

// NewReader constructs a Reader around conn, buffering up to bufferSize
// bytes at a time. bufferSize <= 0 selects DefaultBufferSize.
func NewReader(logger *slog.Logger, conn io.Reader, bufferSize int) *Reader {
	if conn == nil {
		return nil
	}

	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	max := bufferSize
	if max > wiretypes.MaxMessageLength {
		max = wiretypes.MaxMessageLength
	}

	return &Reader{
		logger:         logger,
		Buffer:         bufio.NewReaderSize(conn, bufferSize),
		MaxMessageSize: max,
	}
}

// reset sets reader.Msg to exactly size bytes, reusing spare capacity from
// the previous message where possible.
func (reader *Reader) reset(size int) {
	if reader.Msg != nil {
		reader.Msg = reader.Msg[len(reader.Msg):]
	}

	if cap(reader.Msg) >= size {
		reader.Msg = reader.Msg[:size]
		return
	}

	allocSize := size
	if allocSize < 4096 {
		allocSize = 4096
	}
	reader.Msg = make([]byte, size, allocSize)
}

// ReadType reads the single-byte client message type tag.
func (reader *Reader) ReadType() (wiretypes.ClientMessage, error) {
	b, err := reader.Buffer.ReadByte()
	if err != nil {
		return 0, err
	}

	return wiretypes.ClientMessage(b), nil
}

// ReadTypedMsg reads a typed message (type byte + length-prefixed body),
// returning the type and the number of bytes read after the type byte
// (length prefix plus body).
func (reader *Reader) ReadTypedMsg() (wiretypes.ClientMessage, int, error) {
	typed, err := reader.ReadType()
	if err != nil {
		return typed, 0, err
	}

	n, err := reader.ReadUntypedMsg()
	if err != nil {
		return 0, 0, err
	}

	return typed, n, nil
}

// Slurp discards size bytes from the connection, used to drain the
// remainder of a message that was rejected as too large.
func (reader *Reader) Slurp(size int) error {
	remaining := size
	for remaining > 0 {
		reading := remaining

		if reading > reader.MaxMessageSize {
			reading = reader.MaxMessageSize
		}

		reader.reset(reading)

		n, err := io.ReadFull(reader.Buffer, reader.Msg)
		if err != nil {
			return err
		}

		remaining -= n
	}

	return nil
}

// ReadMsgSize reads the 4-byte big-endian length prefix, returning the
// remaining body length (the prefix itself is excluded).
func (reader *Reader) ReadMsgSize() (int, error) {
	nread, err := io.ReadFull(reader.Buffer, reader.header[:])
	if err != nil {
		return nread, err
	}

	size := int(binary.BigEndian.Uint32(reader.header[:]))
	size -= 4

	return size, nil
}

// ReadUntypedMsg reads a length-prefixed body with no preceding type byte.
// It reads the startup frame directly and the body of every typed message
// via ReadTypedMsg. On success the returned byte count includes the length
// prefix itself; it is 0 when the prefix cannot be read, the declared body
// size when that size is rejected, and the prefix plus the bytes actually
// read when the body read fails.
//
// If size exceeds MaxMessageSize the remaining bytes are drained and
// discarded by the caller via Slurp/UnwrapMessageSizeExceeded.
func (reader *Reader) ReadUntypedMsg() (int, error) {
	size, err := reader.ReadMsgSize()
	if err != nil {
		return 0, err
	}

	if size > reader.MaxMessageSize || size < 0 {
		return size, NewMessageSizeExceeded(reader.MaxMessageSize, size)
	}

	reader.reset(size)
	n, err := io.ReadFull(reader.Buffer, reader.Msg)
	return len(reader.header) + n, err
}

// GetString reads a NUL-terminated string from the front of Msg.
func (reader *Reader) GetString() (string, error) {
	pos := bytes.IndexByte(reader.Msg, 0)
	if pos == -1 {
		return "", NewMissingNulTerminator()
	}

	// Conversion avoids allocation/copy; safe because Msg's backing bytes
	// are never mutated or reused while the returned string is alive.
	s := reader.Msg[:pos]
	reader.Msg = reader.Msg[pos+1:]
	return *((*string)(unsafe.Pointer(&s))), nil
}

// GetPrepareType reads a single byte as a PrepareType ('S' or 'P').
func (reader *Reader) GetPrepareType() (PrepareType, error) {
	v, err := reader.GetBytes(1)
	if err != nil {
		return 0, err
	}

	return PrepareType(v[0]), nil
}

// GetBytes consumes n bytes from the front of Msg. n == -1 denotes a SQL
// NULL parameter and returns a nil slice with no error.
func (reader *Reader) GetBytes(n int) ([]byte, error) {
	if n == -1 {
		return nil, nil
	}
	if len(reader.Msg) < n {
		return nil, NewInsufficientData(len(reader.Msg))
	}

	v := reader.Msg[:n]
	reader.Msg = reader.Msg[n:]
	return v, nil
}

// GetUint16 consumes a big-endian uint16 from the front of Msg.
func (reader *Reader) GetUint16() (uint16, error) {
	if len(reader.Msg) < 2 {
		return 0, NewInsufficientData(len(reader.Msg))
	}

	v := binary.BigEndian.Uint16(reader.Msg[:2])
	reader.Msg = reader.Msg[2:]
	return v, nil
}

// GetUint32 consumes a big-endian uint32 from the front of Msg.
func (reader *Reader) GetUint32() (uint32, error) {
	if len(reader.Msg) < 4 {
		return 0, NewInsufficientData(len(reader.Msg))
	}

	v := binary.BigEndian.Uint32(reader.Msg[:4])
	reader.Msg = reader.Msg[4:]
	return v, nil
}

// GetInt32 consumes a big-endian int32 from the front of Msg.
func (reader *Reader) GetInt32() (int32, error) {
	if len(reader.Msg) < 4 {
		return 0, NewInsufficientData(len(reader.Msg))
	}

	unsignedVal := binary.BigEndian.Uint32(reader.Msg[:4])
	signedVal := int32(unsignedVal)
	reader.Msg = reader.Msg[4:]
	return signedVal, nil
}
