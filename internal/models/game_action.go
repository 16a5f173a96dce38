package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// MatchEventRecord is one public match event as queued for the historian.
type MatchEventRecord struct {
	MatchID   uuid.UUID       `json:"match_id"`
	Seq       int64           `json:"seq"`
	EventType string          `json:"event_type"`
	Phase     string          `json:"phase"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"` // epoch millis
}
