package buffer

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/pgmock/pgmock/internal/wiretypes"
)

func TestNewReaderNil(t *testing.T) {
	reader := NewReader(nil, nil, 0)
	if reader != nil {
		t.Fatalf("unexpected result, expected reader to be nil %+v", reader)
	}
}

func TestReadTypedMsg(t *testing.T) {
	expected := wiretypes.ClientSimpleQuery
	text := append([]byte("John Doe"), 0)

	buf := bytes.NewBuffer([]byte{})
	buf.WriteByte(byte(expected))

	size := make([]byte, 4)
	binary.BigEndian.PutUint32(size, uint32(len(text)))

	buf.Write(size)
	buf.Write(text)

	reader := NewReader(nil, buf, DefaultBufferSize)

	ty, ln, err := reader.ReadTypedMsg()
	if err != nil {
		t.Fatal(err)
	}

	if ty != expected {
		t.Errorf("unexpected message type %s, expected %s", string(ty), string(expected))
	}

	if ln != len(text) {
		t.Errorf("unexpected message length %d, expected %d", ln, len(text))
	}
}

func TestReadUntypedMsg(t *testing.T) {
	text := append([]byte("John Doe"), 0)
	buf := bytes.NewBuffer([]byte{})

	size := make([]byte, 4)
	binary.BigEndian.PutUint32(size, uint32(len(text)))

	buf.Write(size)
	buf.Write(text)

	reader := NewReader(nil, buf, DefaultBufferSize)

	ln, err := reader.ReadUntypedMsg()
	if err != nil {
		t.Fatal(err)
	}

	if ln != len(text) {
		t.Errorf("unexpected message length %d, expected %d", ln, len(text))
	}
}

func TestReadUntypedMsgParameters(t *testing.T) {
	text := append([]byte("John Doe"), 0)
	prepare := PrepareStatement
	raw := []byte{0, 1, 0}
	u16 := make([]byte, 2)
	u32 := make([]byte, 4)

	binary.BigEndian.PutUint16(u16, uint16(math.MaxUint16))
	binary.BigEndian.PutUint32(u32, uint32(math.MaxUint32))

	msg := bytes.NewBuffer(make([]byte, 4))
	msg.Write(text)
	msg.WriteByte(byte(prepare))
	msg.Write(raw)
	msg.Write(u16)
	msg.Write(u32)

	buf := msg.Bytes()
	binary.BigEndian.PutUint32(buf, uint32(msg.Len()))

	reader := NewReader(nil, bytes.NewReader(buf), DefaultBufferSize)
	ln, err := reader.ReadUntypedMsg()
	if err != nil {
		t.Fatal(err)
	}

	if ln != msg.Len() {
		t.Errorf("unexpected message length %d, expected %d", ln, msg.Len())
	}

	expected := string(text[:len(text)-1])
	rstring, err := reader.GetString()
	if err != nil {
		t.Fatal(err)
	}

	if rstring != expected {
		t.Fatalf("unexpected string '%s', expected '%s'", rstring, expected)
	}

	rprepare, err := reader.GetPrepareType()
	if err != nil {
		t.Fatal(err)
	}

	if rprepare != prepare {
		t.Fatalf("unexpected prepare type %+v, expected %+v", rprepare, prepare)
	}

	rbytes, err := reader.GetBytes(len(raw))
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(rbytes, raw) {
		t.Fatalf("unexpected bytes %+v, expected %+v", rbytes, raw)
	}

	ruint16, err := reader.GetUint16()
	if err != nil {
		t.Fatal(err)
	}

	if ruint16 != math.MaxUint16 {
		t.Fatalf("unexpected uint16 %+v, expected %+v", ruint16, math.MaxUint16)
	}

	ruint32, err := reader.GetUint32()
	if err != nil {
		t.Fatal(err)
	}

	if ruint32 != math.MaxUint32 {
		t.Fatalf("unexpected uint32 %+v, expected %+v", ruint32, math.MaxUint32)
	}
}

func TestGetStringNulTerminatorNotFound(t *testing.T) {
	reader := &Reader{
		Msg: []byte("John Doe"),
	}

	_, err := reader.GetString()
	if !errors.Is(err, ErrMissingNulTerminator) {
		t.Fatalf("unexpected err %s, expected %s", err, ErrMissingNulTerminator)
	}
}

func TestGetInsufficientData(t *testing.T) {
	buf := bytes.NewBuffer([]byte{})
	reader := &Reader{
		Msg:    []byte{},
		Buffer: bufio.NewReader(buf),
	}

	t.Run("typed header msg", func(t *testing.T) {
		_, _, err := reader.ReadTypedMsg()
		if err == nil {
			t.Fatal("unexpected pass")
		}
	})

	t.Run("typed msg", func(t *testing.T) {
		buf.WriteByte(byte(wiretypes.ClientSimpleQuery))
		_, _, err := reader.ReadTypedMsg()
		if err == nil {
			t.Fatal("unexpected pass")
		}
	})

	t.Run("untyped msg", func(t *testing.T) {
		_, err := reader.ReadUntypedMsg()
		if err == nil {
			t.Fatal("unexpected pass")
		}
	})

	t.Run("prepare", func(t *testing.T) {
		_, err := reader.GetPrepareType()
		if err == nil {
			t.Fatal("unexpected pass")
		}
	})

	t.Run("string", func(t *testing.T) {
		_, err := reader.GetString()
		if !errors.Is(err, ErrMissingNulTerminator) {
			t.Fatalf("unexpected err %s, expected %s", err, ErrMissingNulTerminator)
		}
	})

	t.Run("bytes", func(t *testing.T) {
		_, err := reader.GetBytes(5)
		if !errors.Is(err, ErrInsufficientData) {
			t.Fatalf("unexpected err %s, expected %s", err, ErrInsufficientData)
		}
	})

	t.Run("uint16", func(t *testing.T) {
		_, err := reader.GetUint16()
		if !errors.Is(err, ErrInsufficientData) {
			t.Fatalf("unexpected err %s, expected %s", err, ErrInsufficientData)
		}
	})

	t.Run("uint32", func(t *testing.T) {
		_, err := reader.GetUint32()
		if !errors.Is(err, ErrInsufficientData) {
			t.Fatalf("unexpected err %s, expected %s", err, ErrInsufficientData)
		}
	})
}

func TestMsgReset(t *testing.T) {
	expected := 4096

	t.Run("undefined", func(t *testing.T) {
		reader := &Reader{}
		reader.reset(expected)

		if len(reader.Msg) != expected {
			t.Errorf("unexpected reader message size %d, expected %d", len(reader.Msg), expected)
		}
	})

	t.Run("greater", func(t *testing.T) {
		reader := &Reader{
			Msg: make([]byte, 0, expected*2),
		}

		reader.reset(expected)

		if len(reader.Msg) != expected {
			t.Errorf("unexpected reader message size %d, expected %d", len(reader.Msg), expected)
		}
	})

	t.Run("smaller", func(t *testing.T) {
		reader := &Reader{
			Msg: make([]byte, 0, expected/2),
		}
		reader.reset(expected)

		if len(reader.Msg) != expected {
			t.Errorf("unexpected reader message size %d, expected %d", len(reader.Msg), expected)
		}
	})
}
