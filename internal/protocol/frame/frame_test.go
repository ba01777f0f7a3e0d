package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	in := Frame{
		Header:  Header{MessageID: 42, Flags: FlagIsReply},
		Payload: []byte{0x81, 0xa7, 's', 'e', 'r', 'v', 'i', 'c', 'e', 0xa5, 'l', 'o', 'g', 'i', 'n'},
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if buf.Len() != HeaderLen+len(in.Payload) {
		t.Fatalf("unexpected encoded size=%d", buf.Len())
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Header.MessageID != 42 || out.Header.Flags&FlagIsReply == 0 {
		t.Fatalf("header mismatch: %+v", out.Header)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestReadFrameShortHeader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
	_, err = ReadFrame(bytes.NewReader(nil), DefaultLimits())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF on clean close, got %v", err)
	}
}

func TestReadFrameRejectsBadMagicAndVersion(t *testing.T) {
	bad := EncodeHeader(Header{Magic: 1, Version: Version})
	if _, err := ReadFrame(bytes.NewReader(bad), DefaultLimits()); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
	old := EncodeHeader(Header{Magic: Magic, Version: 9})
	if _, err := ReadFrame(bytes.NewReader(old), DefaultLimits()); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestPayloadLimits(t *testing.T) {
	limits := Limits{MaxPayloadBytes: 4}
	if err := WriteFrame(io.Discard, Frame{Payload: []byte("12345")}, limits); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected write ErrPayloadTooLarge, got %v", err)
	}
	big := EncodeHeader(Header{Magic: Magic, Version: Version, PayloadLen: 5})
	if _, err := ReadFrame(bytes.NewReader(big), limits); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected read ErrPayloadTooLarge, got %v", err)
	}
}
