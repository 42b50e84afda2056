package protocol

import (
	"fmt"
	"io"
)

// Entry point and entry response tags.
const (
	TagVersion = "version"
	TagLogin   = "login"

	TagPing    = "ping"
	TagValid   = "valid"
	TagInvalid = "invalid"
)

// EntryPoint - first message on a new connection: VersionProbe or LoginAttempt.
type EntryPoint interface {
	entryPoint()
}

// VersionProbe - client asks whether its version is compatible, the connection is closed after reply.
type VersionProbe struct {
	ClientVersion string
}

// LoginAttempt - client asks to join the chat.
type LoginAttempt struct {
	Username  string
	Password  string
	Signup    bool
	SignupKey string
}

func (VersionProbe) entryPoint() {}
func (LoginAttempt) entryPoint() {}

// EntryResponse - server reply to EntryPoint: PingAck, Valid or Invalid.
type EntryResponse interface {
	entryResponse()
}

// PingAck - reply to VersionProbe.
type PingAck struct {
	Compatible    bool
	ServerVersion string
}

// Valid - login accepted, carries message of the day.
type Valid struct {
	MOTD string
}

// Invalid - login or connection refused.
type Invalid struct {
	Reason string
}

func (PingAck) entryResponse() {}
func (Valid) entryResponse()   {}
func (Invalid) entryResponse() {}

// EncodeEntryPoint - converts entry point into frame segments.
func EncodeEntryPoint(ep EntryPoint) ([][]byte, error) {
	switch m := ep.(type) {
	case VersionProbe:
		return [][]byte{[]byte(TagVersion), []byte(m.ClientVersion)}, nil
	case LoginAttempt:
		return [][]byte{
			[]byte(TagLogin),
			[]byte(m.Username),
			[]byte(m.Password),
			encodeFlag(m.Signup),
			[]byte(m.SignupKey),
		}, nil
	default:
		return nil, fmt.Errorf("protocol.EncodeEntryPoint: unsupported type %T", ep)
	}
}

// DecodeEntryPoint - builds entry point from frame segments.
func DecodeEntryPoint(segments [][]byte) (EntryPoint, error) {
	tag, err := messageTag(segments)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagVersion:
		if err := expectSegments(tag, segments, 2); err != nil {
			return nil, err
		}
		return VersionProbe{ClientVersion: string(segments[1])}, nil
	case TagLogin:
		if err := expectSegments(tag, segments, 5); err != nil {
			return nil, err
		}
		signup, err := decodeFlag(segments[3])
		if err != nil {
			return nil, err
		}
		return LoginAttempt{
			Username:  string(segments[1]),
			Password:  string(segments[2]),
			Signup:    signup,
			SignupKey: string(segments[4]),
		}, nil
	default:
		return nil, fmt.Errorf("%w: entry point %q", ErrUnknownTag, tag)
	}
}

// EncodeEntryResponse - converts entry response into frame segments.
func EncodeEntryResponse(resp EntryResponse) ([][]byte, error) {
	switch m := resp.(type) {
	case PingAck:
		return [][]byte{[]byte(TagPing), encodeFlag(m.Compatible), []byte(m.ServerVersion)}, nil
	case Valid:
		return [][]byte{[]byte(TagValid), []byte(m.MOTD)}, nil
	case Invalid:
		return [][]byte{[]byte(TagInvalid), []byte(m.Reason)}, nil
	default:
		return nil, fmt.Errorf("protocol.EncodeEntryResponse: unsupported type %T", resp)
	}
}

// DecodeEntryResponse - builds entry response from frame segments.
func DecodeEntryResponse(segments [][]byte) (EntryResponse, error) {
	tag, err := messageTag(segments)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagPing:
		if err := expectSegments(tag, segments, 3); err != nil {
			return nil, err
		}
		compatible, err := decodeFlag(segments[1])
		if err != nil {
			return nil, err
		}
		return PingAck{Compatible: compatible, ServerVersion: string(segments[2])}, nil
	case TagValid:
		if err := expectSegments(tag, segments, 2); err != nil {
			return nil, err
		}
		return Valid{MOTD: string(segments[1])}, nil
	case TagInvalid:
		if err := expectSegments(tag, segments, 2); err != nil {
			return nil, err
		}
		return Invalid{Reason: string(segments[1])}, nil
	default:
		return nil, fmt.Errorf("%w: entry response %q", ErrUnknownTag, tag)
	}
}

// ReadEntryPoint - reads and decodes one entry point frame.
func ReadEntryPoint(r io.Reader) (EntryPoint, error) {
	segments, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodeEntryPoint(segments)
}

// WriteEntryPoint - encodes entry point and writes it as one frame.
func WriteEntryPoint(w io.Writer, ep EntryPoint) error {
	segments, err := EncodeEntryPoint(ep)
	if err != nil {
		return err
	}
	return WriteFrame(w, segments...)
}

// ReadEntryResponse - reads and decodes one entry response frame.
func ReadEntryResponse(r io.Reader) (EntryResponse, error) {
	segments, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodeEntryResponse(segments)
}

// WriteEntryResponse - encodes entry response and writes it as one frame.
func WriteEntryResponse(w io.Writer, resp EntryResponse) error {
	segments, err := EncodeEntryResponse(resp)
	if err != nil {
		return err
	}
	return WriteFrame(w, segments...)
}

func messageTag(segments [][]byte) (string, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: empty frame", ErrSegmentCount)
	}
	return string(segments[0]), nil
}

func expectSegments(tag string, segments [][]byte, n int) error {
	if len(segments) != n {
		return fmt.Errorf("%w: %q expects %d, got %d", ErrSegmentCount, tag, n, len(segments))
	}
	return nil
}

func encodeFlag(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func decodeFlag(b []byte) (bool, error) {
	if len(b) != 1 || b[0] > 1 {
		return false, fmt.Errorf("%w: invalid flag %v", ErrMalformedFrame, b)
	}
	return b[0] == 1, nil
}
