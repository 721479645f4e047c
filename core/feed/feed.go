package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/kilianp07/taxidispatch/core/model"
)

// Feed topics.
const (
	TopicPosition = "position"
	TopicStatus   = "status"
)

// ErrMalformedMessage is returned for feed lines or payloads that cannot be
// decoded.
var ErrMalformedMessage = errors.New("malformed feed message")

// Message is one decoded feed line. Payload is kept raw; the registry decodes
// it according to Topic.
type Message struct {
	Topic   string
	AgentID int
	Payload json.RawMessage
}

// PositionPayload is the body of a position message. Pointer fields
// distinguish "absent" from zero values.
type PositionPayload struct {
	X                 *float64       `json:"x"`
	Y                 *float64       `json:"y"`
	Address           *model.Address `json:"address"`
	Status            string         `json:"status,omitempty"`
	ServicesCompleted int            `json:"services_completed"`
	MaxServices       int            `json:"max_services"`
}

// StatusPayload is the body of a status message.
type StatusPayload struct {
	Status string `json:"status"`
}

// ParseLine decodes a raw feed line.
func ParseLine(line string) (Message, error) {
	rest := strings.TrimLeftFunc(line, unicode.IsSpace)
	topic, rest, ok := cutSpace(rest)
	if !ok {
		return Message{}, fmt.Errorf("%w: missing agent id", ErrMalformedMessage)
	}
	idText, payload, ok := cutSpace(rest)
	if !ok {
		return Message{}, fmt.Errorf("%w: missing payload", ErrMalformedMessage)
	}
	if topic != TopicPosition && topic != TopicStatus {
		return Message{}, fmt.Errorf("%w: unknown topic %q", ErrMalformedMessage, topic)
	}
	id, err := strconv.Atoi(idText)
	if err != nil {
		return Message{}, fmt.Errorf("%w: agent id %q", ErrMalformedMessage, idText)
	}
	payload = strings.TrimSpace(payload)
	if !json.Valid([]byte(payload)) {
		return Message{}, fmt.Errorf("%w: payload is not JSON", ErrMalformedMessage)
	}
	return Message{Topic: topic, AgentID: id, Payload: json.RawMessage(payload)}, nil
}

// cutSpace splits s at its first whitespace run.
func cutSpace(s string) (string, string, bool) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, "", false
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace), true
}

// FormatLine encodes m as a feed line without a trailing newline.
func FormatLine(m Message) string {
	return m.Topic + " " + strconv.Itoa(m.AgentID) + " " + string(m.Payload)
}

// NewPosition builds the position message an agent publishes for rec.
func NewPosition(rec model.AgentRecord) (Message, error) {
	x, y, addr := rec.X, rec.Y, rec.Address
	b, err := json.Marshal(PositionPayload{
		X:                 &x,
		Y:                 &y,
		Address:           &addr,
		Status:            string(rec.Status),
		ServicesCompleted: rec.ServicesCompleted,
		MaxServices:       rec.MaxServices,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: TopicPosition, AgentID: rec.ID, Payload: b}, nil
}

// NewStatus builds a status message.
func NewStatus(agentID int, st model.Status) (Message, error) {
	b, err := json.Marshal(StatusPayload{Status: string(st)})
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: TopicStatus, AgentID: agentID, Payload: b}, nil
}
