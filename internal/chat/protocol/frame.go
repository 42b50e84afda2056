// Package protocol implements chat wire format: length-prefixed frames of byte segments
// and typed messages (entry point, entry response, chat event) layered onto single frames.
//
// Frame layout:
//
//	| payload length (uint32, big-endian) | segment 1 | ... | segment N |
//
// where every segment is
//
//	| segment length (uint32, big-endian) | segment bytes |
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// LengthSize - size in bytes of frame and segment length prefixes.
	LengthSize = 4

	// MaxFrameSize - upper bound of frame payload accepted by ReadFrame and produced by WriteFrame.
	MaxFrameSize = 1 << 20
)

// ReadFrame - reads one frame from r and splits its payload into segments.
// Returns io.EOF only if the stream ended before the first byte of a frame.
func ReadFrame(r io.Reader) ([][]byte, error) {
	header := [LengthSize]byte{}
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return splitSegments(payload)
}

// WriteFrame - encodes segments into single frame and writes it with one Write call.
func WriteFrame(w io.Writer, segments ...[]byte) error {
	frame, err := EncodeFrame(segments...)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// EncodeFrame - builds complete frame bytes, including the frame header.
func EncodeFrame(segments ...[]byte) ([]byte, error) {
	size := 0
	for _, s := range segments {
		size += LengthSize + len(s)
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	buf := make([]byte, LengthSize, LengthSize+size)
	binary.BigEndian.PutUint32(buf, uint32(size))
	for _, s := range segments {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	return buf, nil
}

func splitSegments(payload []byte) ([][]byte, error) {
	segments := [][]byte{}
	for len(payload) > 0 {
		if len(payload) < LengthSize {
			return nil, fmt.Errorf("%w: truncated segment header", ErrMalformedFrame)
		}
		n := binary.BigEndian.Uint32(payload)
		payload = payload[LengthSize:]
		if uint64(n) > uint64(len(payload)) {
			return nil, fmt.Errorf("%w: segment of %d bytes exceeds frame", ErrMalformedFrame, n)
		}
		segments = append(segments, payload[:n:n])
		payload = payload[n:]
	}
	return segments, nil
}
