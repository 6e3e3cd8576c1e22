package buffer

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/pgmock/pgmock/internal/wireerr"
	"github.com/pgmock/pgmock/internal/wirecodes"
	"github.com/pgmock/pgmock/internal/wiretypes"
)

func flattenedTestFields() wireerr.Fields {
	return wireerr.Fields{
		Code:     wirecodes.Syntax,
		Message:  "syntax error at or near \"foo\"",
		Severity: wireerr.LevelError,
	}
}

func TestNewWriterNil(t *testing.T) {
	NewWriter(nil, nil)
}

func TestWriteMsg(t *testing.T) {
	buf := bytes.NewBuffer([]byte{})
	writer := NewWriter(nil, buf)

	writer.Start(wiretypes.ServerDataRow)
	writer.AddString("John Doe")
	writer.AddNullTerminate()
	err := writer.End()
	if err != nil {
		t.Error(err)
	}

	if len(writer.Bytes()) != 0 {
		t.Errorf("unexpected bytes %+v, expected the writer to be empty", writer.Bytes())
	}

	if writer.Error() != nil {
		t.Error(writer.Error())
	}
}

func TestWriteMsgErr(t *testing.T) {
	expected := errors.New("unexpected error")

	buf := bytes.NewBuffer([]byte{})
	writer := NewWriter(nil, buf)

	writer.Start(wiretypes.ServerDataRow)
	writer.err = expected

	writer.AddString("John Doe")
	writer.AddNullTerminate()
	err := writer.End()
	if err != expected {
		t.Errorf("unexpected error %s, expected %s", err, expected)
	}

	if writer.Error() != nil {
		t.Errorf("unexpected error %s, error should be empty after end", writer.Error())
	}
}

func TestWriteTypes(t *testing.T) {
	buf := bytes.NewBuffer([]byte{})
	writer := NewWriter(nil, buf)

	t.Run("byte", func(t *testing.T) {
		writer.AddByte(byte(wiretypes.ServerAuth))
		if writer.Error() != nil {
			t.Error(writer.Error())
		}
	})

	t.Run("bytes", func(t *testing.T) {
		writer.AddBytes([]byte("John Doe"))
		if writer.Error() != nil {
			t.Error(writer.Error())
		}
	})

	t.Run("string", func(t *testing.T) {
		writer.AddString("John Doe")
		writer.AddNullTerminate()
		if writer.Error() != nil {
			t.Error(writer.Error())
		}
	})

	t.Run("int16", func(t *testing.T) {
		writer.AddInt16(math.MaxInt16)
		if writer.Error() != nil {
			t.Error(writer.Error())
		}
	})

	t.Run("int32", func(t *testing.T) {
		writer.AddInt32(math.MaxInt32)
		if writer.Error() != nil {
			t.Error(writer.Error())
		}
	})
}

func TestWriteErrFields(t *testing.T) {
	buf := bytes.NewBuffer([]byte{})
	writer := NewWriter(nil, buf)

	err := WriteErrFields(writer, wiretypes.ServerErrorResponse, flattenedTestFields())
	if err != nil {
		t.Fatal(err)
	}

	out := buf.Bytes()
	if wiretypes.ServerMessage(out[0]) != wiretypes.ServerErrorResponse {
		t.Fatalf("unexpected message type %c", out[0])
	}

	if !bytes.Contains(out, []byte("42601")) {
		t.Errorf("expected serialized body to contain the SQLSTATE code, got %q", out)
	}

	if !bytes.Contains(out, []byte("syntax error")) {
		t.Errorf("expected serialized body to contain the message, got %q", out)
	}
}
