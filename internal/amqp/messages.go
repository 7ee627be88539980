package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"conti/internal/core"
)

// GroupChangedMessage announces that a group's data moved to a new
// fingerprint. It carries no payload: consumers reload the snapshot.
type GroupChangedMessage struct {
	GroupID     string    `json:"group_id"`
	Fingerprint int64     `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
}

var errMissingGroupID = errors.New("message has no group_id")

func NewGroupChangedMessage(groupID string, fp core.Fingerprint) *GroupChangedMessage {
	return &GroupChangedMessage{
		GroupID:     groupID,
		Fingerprint: int64(fp),
		Timestamp:   time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *GroupChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// GroupChangedMessageFromJSON decodes and checks a message body.
func GroupChangedMessageFromJSON(data []byte) (*GroupChangedMessage, error) {
	var msg GroupChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.GroupID == "" {
		return nil, errMissingGroupID
	}
	return &msg, nil
}
