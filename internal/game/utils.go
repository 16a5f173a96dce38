// internal/game/utils.go
package game

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// EncodeEvent marshals ev for the wire. On failure it logs and returns "{}" so a sink never
// sends a half-written frame.
func EncodeEvent(ev Event) []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		logrus.WithFields(logrus.Fields{"match": ev.MatchID, "type": ev.Type}).
			Warnf("failed to marshal event: %v", err)
		return []byte("{}")
	}
	return data
}

func intPtr(v int) *int { return &v }
