package protocol

import (
	"fmt"
	"io"
	"strconv"
)

// Chat event tags.
const (
	TagMessage   = "message"
	TagConfig    = "config"
	TagKeepalive = "keepalive"
	TagError     = "error"
)

// Event - chat event carried by one frame in both directions after successful login.
// Disconnect flag is orthogonal to the body: sender asks to close the session after the event.
type Event struct {
	Body       EventBody
	Disconnect bool
}

// EventBody - exactly one of Message, ConfigUpdate, Keepalive, ErrorNotice.
type EventBody interface {
	eventBody()
	tag() string
}

// Message - chat text.
type Message struct {
	Text string
}

// ConfigUpdate - client presentation settings.
type ConfigUpdate struct {
	DisplayName  string
	NameColor    string
	MessageColor string
}

// Keepalive - liveness probe (server to client) or its acknowledgement (client to server).
type Keepalive struct {
	EpochSeconds uint64
}

// ErrorNotice - peer reports an error condition.
type ErrorNotice struct {
	Text string
}

func (Message) eventBody()      {}
func (ConfigUpdate) eventBody() {}
func (Keepalive) eventBody()    {}
func (ErrorNotice) eventBody()  {}

func (Message) tag() string      { return TagMessage }
func (ConfigUpdate) tag() string { return TagConfig }
func (Keepalive) tag() string    { return TagKeepalive }
func (ErrorNotice) tag() string  { return TagError }

// EncodeEvent - converts event into frame segments: tag, disconnect flag, body fields.
func EncodeEvent(ev Event) ([][]byte, error) {
	if ev.Body == nil {
		return nil, fmt.Errorf("protocol.EncodeEvent: event body is nil")
	}
	segments := [][]byte{[]byte(ev.Body.tag()), encodeFlag(ev.Disconnect)}
	switch b := ev.Body.(type) {
	case Message:
		segments = append(segments, []byte(b.Text))
	case ConfigUpdate:
		segments = append(segments, []byte(b.DisplayName), []byte(b.NameColor), []byte(b.MessageColor))
	case Keepalive:
		segments = append(segments, strconv.AppendUint(nil, b.EpochSeconds, 10))
	case ErrorNotice:
		segments = append(segments, []byte(b.Text))
	default:
		return nil, fmt.Errorf("protocol.EncodeEvent: unsupported body %T", ev.Body)
	}
	return segments, nil
}

// DecodeEvent - builds event from frame segments.
func DecodeEvent(segments [][]byte) (Event, error) {
	tag, err := messageTag(segments)
	if err != nil {
		return Event{}, err
	}

	n := 0
	switch tag {
	case TagMessage, TagKeepalive, TagError:
		n = 3
	case TagConfig:
		n = 5
	default:
		return Event{}, fmt.Errorf("%w: event %q", ErrUnknownTag, tag)
	}
	if err := expectSegments(tag, segments, n); err != nil {
		return Event{}, err
	}
	disconnect, err := decodeFlag(segments[1])
	if err != nil {
		return Event{}, err
	}

	ev := Event{Disconnect: disconnect}
	switch tag {
	case TagMessage:
		ev.Body = Message{Text: string(segments[2])}
	case TagConfig:
		ev.Body = ConfigUpdate{
			DisplayName:  string(segments[2]),
			NameColor:    string(segments[3]),
			MessageColor: string(segments[4]),
		}
	case TagKeepalive:
		epoch, err := strconv.ParseUint(string(segments[2]), 10, 64)
		if err != nil {
			return Event{}, fmt.Errorf("%w: keepalive epoch: %v", ErrMalformedFrame, err)
		}
		ev.Body = Keepalive{EpochSeconds: epoch}
	case TagError:
		ev.Body = ErrorNotice{Text: string(segments[2])}
	}
	return ev, nil
}

// ReadEvent - reads and decodes one event frame.
func ReadEvent(r io.Reader) (Event, error) {
	segments, err := ReadFrame(r)
	if err != nil {
		return Event{}, err
	}
	return DecodeEvent(segments)
}

// WriteEvent - encodes event and writes it as one frame.
func WriteEvent(w io.Writer, ev Event) error {
	segments, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	return WriteFrame(w, segments...)
}
