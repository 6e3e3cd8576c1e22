package buffer

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"strconv"

	"github.com/pgmock/pgmock/internal/wireerr"
	"github.com/pgmock/pgmock/internal/wiretypes"
)

// Writer assembles PostgreSQL wire protocol frames. A single Writer is
// reused across the lifetime of a connection: Start begins a frame, the
// Add* methods append its body, and End patches in the final length and
// flushes the frame to the underlying connection.
type Writer struct {
	io.Writer
	logger *slog.Logger
	frame  bytes.Buffer
	putbuf [64]byte
	err    error
}

// NewWriter constructs a Writer that flushes completed frames to conn.
func NewWriter(logger *slog.Logger, conn io.Writer) *Writer {
	return &Writer{
		logger: logger,
		Writer: conn,
	}
}

// Start resets the frame buffer and writes the message type byte plus a
// placeholder for the length prefix, to be patched in by End.
func (writer *Writer) Start(t wiretypes.ServerMessage) {
	writer.Reset()
	writer.putbuf[0] = byte(t)
	writer.frame.Write(writer.putbuf[:5])
}

// AddByte appends a single byte to the frame.
func (writer *Writer) AddByte(b byte) {
	if writer.err != nil {
		return
	}

	writer.err = writer.frame.WriteByte(b)
}

// AddInt16 appends a big-endian int16 to the frame.
func (writer *Writer) AddInt16(i int16) (size int) {
	if writer.err != nil {
		return size
	}

	x := make([]byte, 2)
	binary.BigEndian.PutUint16(x, uint16(i))
	size, writer.err = writer.frame.Write(x)
	return size
}

// AddInt32 appends a big-endian int32 to the frame.
func (writer *Writer) AddInt32(i int32) (size int) {
	if writer.err != nil {
		return size
	}

	x := make([]byte, 4)
	binary.BigEndian.PutUint32(x, uint32(i))
	size, writer.err = writer.frame.Write(x)
	return size
}

// AddBytes appends raw bytes to the frame.
func (writer *Writer) AddBytes(b []byte) (size int) {
	if writer.err != nil {
		return size
	}

	size, writer.err = writer.frame.Write(b)
	return size
}

// AddString appends a string to the frame without a trailing NUL.
func (writer *Writer) AddString(s string) (size int) {
	if writer.err != nil {
		return size
	}

	size, writer.err = writer.frame.WriteString(s)
	return size
}

// AddNullTerminate appends a NUL byte, terminating a C-string field.
func (writer *Writer) AddNullTerminate() {
	if writer.err != nil {
		return
	}

	writer.err = writer.frame.WriteByte(0)
}

// Error returns the first error encountered while building the current
// frame, if any.
func (writer *Writer) Error() error {
	return writer.err
}

// Bytes returns the frame assembled so far.
func (writer *Writer) Bytes() []byte {
	return writer.frame.Bytes()
}

// Reset discards the current frame.
func (writer *Writer) Reset() {
	writer.frame.Reset()
	writer.err = nil
}

// End patches in the frame's final length and flushes it to the
// connection, then resets the buffer for the next frame.
func (writer *Writer) End() error {
	defer writer.Reset()
	if writer.Error() != nil {
		return writer.Error()
	}

	raw := writer.frame.Bytes()
	length := uint32(writer.frame.Len() - 1) // excludes the type byte
	binary.BigEndian.PutUint32(raw[1:5], length)
	_, err := writer.Write(raw)

	if writer.logger != nil {
		writer.logger.Debug("-> writing message", slog.String("type", wiretypes.ServerMessage(raw[0]).String()))
	}
	return err
}

// EncodeBoolean renders a boolean as the "on"/"off" strings Postgres uses
// for GUC-style parameter values.
func EncodeBoolean(value bool) string {
	if value {
		return "on"
	}

	return "off"
}

// WriteErrFields serializes a flattened error (or notice) as the tagged
// field sequence shared by ErrorResponse and NoticeResponse: each field is
// a one-byte tag followed by a NUL-terminated string, with a final lone
// NUL byte terminating the list. msgType selects which of the two message
// types is framed.
func WriteErrFields(writer *Writer, msgType wiretypes.ServerMessage, fields wireerr.Fields) error {
	writer.Start(msgType)

	severity := fields.Severity
	if severity == "" {
		severity = wireerr.LevelError
	}

	writer.AddByte(byte(ErrFieldSeverity))
	writer.AddString(string(severity))
	writer.AddNullTerminate()

	writer.AddByte(byte(ErrFieldSeverityNonLoc))
	writer.AddString(string(severity))
	writer.AddNullTerminate()

	code := fields.Code
	if code == "" {
		code = "XXUUU"
	}

	writer.AddByte(byte(ErrFieldSQLState))
	writer.AddString(string(code))
	writer.AddNullTerminate()

	writer.AddByte(byte(ErrFieldMsgPrimary))
	writer.AddString(fields.Message)
	writer.AddNullTerminate()

	if fields.Detail != "" {
		writer.AddByte(byte(ErrFieldDetail))
		writer.AddString(fields.Detail)
		writer.AddNullTerminate()
	}

	if fields.Hint != "" {
		writer.AddByte(byte(ErrFieldHint))
		writer.AddString(fields.Hint)
		writer.AddNullTerminate()
	}

	if fields.Where != "" {
		writer.AddByte(byte(ErrFieldWhere))
		writer.AddString(fields.Where)
		writer.AddNullTerminate()
	}

	if fields.ConstraintName != "" {
		writer.AddByte(byte(ErrFieldConstraintName))
		writer.AddString(fields.ConstraintName)
		writer.AddNullTerminate()
	}

	if fields.Source != nil {
		if fields.Source.File != "" {
			writer.AddByte(byte(ErrFieldSrcFile))
			writer.AddString(fields.Source.File)
			writer.AddNullTerminate()
		}
		if fields.Source.Line != 0 {
			writer.AddByte(byte(ErrFieldSrcLine))
			writer.AddString(strconv.Itoa(int(fields.Source.Line)))
			writer.AddNullTerminate()
		}
		if fields.Source.Function != "" {
			writer.AddByte(byte(ErrFieldSrcFunction))
			writer.AddString(fields.Source.Function)
			writer.AddNullTerminate()
		}
	}

	writer.AddNullTerminate()
	return writer.End()
}
