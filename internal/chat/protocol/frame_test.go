package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"reflect"
	"testing"
)

func TestFrame_RoundTrip(test *testing.T) {
	cases := [][][]byte{
		{},
		{[]byte("")},
		{[]byte("one")},
		{[]byte("one"), []byte(""), []byte("Hello, 世界")},
		{bytes.Repeat([]byte{0xff}, 4096), {0}, {1}},
	}
	buf := &bytes.Buffer{}
	for _, c := range cases {
		if err := WriteFrame(buf, c...); err != nil {
			test.Fatal("WriteFrame: unexpected error", err)
		}
	}
	for i, c := range cases {
		actual, err := ReadFrame(buf)
		if err != nil {
			test.Fatalf("ReadFrame #%d: unexpected error %v", i, err)
		}
		if len(actual) != len(c) {
			test.Errorf("ReadFrame #%d: expected %d segments, got %d", i, len(c), len(actual))
			continue
		}
		for j := range c {
			if !bytes.Equal(actual[j], c[j]) {
				test.Errorf("ReadFrame #%d: segment %d expected %q, got %q", i, j, c[j], actual[j])
			}
		}
	}
	if _, err := ReadFrame(buf); err != io.EOF {
		test.Error("ReadFrame on drained stream: expected io.EOF, got", err)
	}
}

func TestFrame_OverPipe(test *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	expected := [][]byte{[]byte(TagMessage), {0}, []byte("hello")}
	go func() {
		if err := WriteFrame(client, expected...); err != nil {
			test.Log("WriteFrame:", err)
		}
	}()
	actual, err := ReadFrame(server)
	if err != nil {
		test.Fatal("ReadFrame: unexpected error", err)
	}
	if !reflect.DeepEqual(actual, expected) {
		test.Errorf("expected %q, got %q", expected, actual)
	}
}

func TestReadFrame_Errors(test *testing.T) {
	header := func(n uint32) []byte {
		return binary.BigEndian.AppendUint32(nil, n)
	}
	cases := []struct {
		name     string
		data     []byte
		expected error
	}{
		{"truncated header", []byte{0, 0}, io.ErrUnexpectedEOF},
		{"truncated payload", append(header(10), 1, 2, 3), io.ErrUnexpectedEOF},
		{"header without payload", header(10), io.ErrUnexpectedEOF},
		{"too large", header(MaxFrameSize + 1), ErrFrameTooLarge},
		{"truncated segment header", append(header(2), 0, 0), ErrMalformedFrame},
		{"segment exceeds frame", append(header(5), append(header(2), 'a')...), ErrMalformedFrame},
	}
	for _, c := range cases {
		_, err := ReadFrame(bytes.NewReader(c.data))
		if !errors.Is(err, c.expected) {
			test.Errorf("%s: expected %v, got %v", c.name, c.expected, err)
		}
	}
}

func TestDecodeErrors_AreDecodeErrors(test *testing.T) {
	for _, err := range []error{ErrFrameTooLarge, ErrMalformedFrame, ErrSegmentCount} {
		if !errors.Is(err, ErrDecode) {
			test.Errorf("%v: expected to be ErrDecode", err)
		}
	}
	if errors.Is(ErrUnknownTag, ErrDecode) {
		test.Error("ErrUnknownTag must not be ErrDecode")
	}
}

func TestEncodeFrame_TooLarge(test *testing.T) {
	if _, err := EncodeFrame(make([]byte, MaxFrameSize)); !errors.Is(err, ErrFrameTooLarge) {
		test.Error("expected ErrFrameTooLarge, got", err)
	}
}
