package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode - common cause of every decoding failure, check it with errors.Is.
	ErrDecode = errors.New("protocol: decode error")

	// ErrFrameTooLarge - frame payload exceeds MaxFrameSize.
	ErrFrameTooLarge = fmt.Errorf("%w: frame too large", ErrDecode)

	// ErrMalformedFrame - segments do not exactly cover frame payload or a field has invalid encoding.
	ErrMalformedFrame = fmt.Errorf("%w: malformed frame", ErrDecode)

	// ErrSegmentCount - frame carries unexpected number of segments for its message tag.
	ErrSegmentCount = fmt.Errorf("%w: invalid segment count", ErrDecode)

	// ErrUnknownTag - frame is well formed, but its message tag is not expected here.
	// Unlike other errors of the package it is not a decode error, but protocol violation.
	ErrUnknownTag = errors.New("protocol: unknown message tag")
)
