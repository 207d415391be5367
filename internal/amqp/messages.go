package amqp

import (
	"encoding/json"
	"time"
)

// PinRequestMessage asks the worker to pin a stored upload to IPFS.
// It carries only the upload ID; the worker reads the bytes from SQLite.
type PinRequestMessage struct {
	UploadID  string    `json:"upload_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPinRequestMessage creates a pin request for uploadID
func NewPinRequestMessage(uploadID string) *PinRequestMessage {
	return &PinRequestMessage{
		UploadID:  uploadID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PinRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PinRequestMessageFromJSON creates a message from JSON bytes
func PinRequestMessageFromJSON(data []byte) (*PinRequestMessage, error) {
	var msg PinRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
