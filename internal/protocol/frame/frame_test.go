package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/lnpnet/internal/testutil/testlog"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	for _, p := range [][]byte{[]byte("first"), {}, bytes.Repeat([]byte{0xAB}, 300)} {
		if err := WriteFrame(&buf, p, DefaultLimits()); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	if got := buf.Bytes()[:7]; !bytes.Equal(got, []byte{0x05, 0x00, 'f', 'i', 'r', 's', 't'}) {
		t.Fatalf("unexpected prefix layout: % x", got)
	}

	for i, want := range [][]byte{[]byte("first"), {}, bytes.Repeat([]byte{0xAB}, 300)} {
		got, err := ReadFrame(&buf, DefaultLimits())
		if err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d mismatch", i)
		}
	}
	if _, err := ReadFrame(&buf, DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestReadFrameShortPrefix(t *testing.T) {
	testlog.Start(t)

	_, err := ReadFrame(bytes.NewReader([]byte{0x01}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadFrameShortBody(t *testing.T) {
	testlog.Start(t)

	_, err := ReadFrame(bytes.NewReader([]byte{0x05, 0x00, 'a', 'b'}), DefaultLimits())
	if !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
}

func TestFrameLimits(t *testing.T) {
	testlog.Start(t)

	small := Limits{MaxFrameBytes: 4}
	if err := WriteFrame(io.Discard, []byte("12345"), small); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge on write, got %v", err)
	}
	_, err := ReadFrame(bytes.NewReader([]byte{0x05, 0x00, '1', '2', '3', '4', '5'}), small)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge on read, got %v", err)
	}
	if err := WriteFrame(io.Discard, make([]byte, 1<<16), Limits{}); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge above the protocol maximum, got %v", err)
	}
}
