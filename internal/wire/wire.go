// Package wire defines the copier MQTT wire protocol.
//
// All messages are JSON. Content payloads are base64-encoded so the
// compressed binary data is safe to embed in JSON strings. Given a configured
// topic prefix P, content messages travel on P/content and presence messages
// travel retained on P/status.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"go.klb.dev/copier/internal/content"
)

// DefaultTopicPrefix is the namespace root used when none is configured.
const DefaultTopicPrefix = "copier/clipboard"

// Presence status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ContentTopic returns the topic content messages are published to.
func ContentTopic(prefix string) string {
	return canonicalPrefix(prefix) + "/content"
}

// StatusTopic returns the topic presence messages are published to.
func StatusTopic(prefix string) string {
	return canonicalPrefix(prefix) + "/status"
}

// SubscriptionFilter returns the wildcard filter covering every topic under
// the prefix.
func SubscriptionFilter(prefix string) string {
	return canonicalPrefix(prefix) + "/#"
}

func canonicalPrefix(prefix string) string {
	if prefix == "" {
		return DefaultTopicPrefix
	}
	return prefix
}

// SyncMessage is the envelope for one clipboard capture on the content topic.
type SyncMessage struct {
	Type      content.Kind `json:"type"`
	Content   string       `json:"content"` // base64 of compressed payload bytes
	Source    string       `json:"source"`
	Timestamp int64        `json:"timestamp"` // unix milliseconds
}

// NewSyncMessage wraps compressed payload bytes in an envelope stamped with
// the local client identity and the current time.
func NewSyncMessage(kind content.Kind, compressed []byte, source string) *SyncMessage {
	return &SyncMessage{
		Type:      kind,
		Content:   base64.StdEncoding.EncodeToString(compressed),
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Encode serialises the message to JSON.
func (m *SyncMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Payload returns the decoded compressed payload bytes.
func (m *SyncMessage) Payload() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(m.Content)
	if err != nil {
		return nil, fmt.Errorf("sync message payload: %w", err)
	}
	return b, nil
}

// DecodeSyncMessage parses a content-topic envelope.
func DecodeSyncMessage(b []byte) (*SyncMessage, error) {
	var m SyncMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("sync message decode: %w", err)
	}
	if m.Type != content.KindText && m.Type != content.KindImage {
		return nil, fmt.Errorf("sync message decode: unknown type %q", m.Type)
	}
	return &m, nil
}

// PresenceMessage announces a client's online/offline state. Exactly one
// retained presence message exists per client at any time; each publish
// overwrites the last, and the connect-time last will delivers the offline
// form when a client dies ungracefully.
type PresenceMessage struct {
	ClientID  string `json:"client_id"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// NewPresenceMessage builds a presence message stamped with the current time.
func NewPresenceMessage(clientID, status string) *PresenceMessage {
	return &PresenceMessage{
		ClientID:  clientID,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Encode serialises the message to JSON.
func (m *PresenceMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodePresenceMessage parses a status-topic envelope.
func DecodePresenceMessage(b []byte) (*PresenceMessage, error) {
	var m PresenceMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("presence decode: %w", err)
	}
	if m.ClientID == "" {
		return nil, fmt.Errorf("presence decode: missing client_id")
	}
	return &m, nil
}
