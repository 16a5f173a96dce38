// internal/handlers/respond.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jason-s-yu/nightstake/internal/game"
	"github.com/sirupsen/logrus"
)

// errorBody is the JSON shape of every error response, REST and WS alike.
type errorBody struct {
	Type    string `json:"type,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

var kindStatus = map[string]int{
	"NotFound":               http.StatusNotFound,
	"InvalidPhase":           http.StatusConflict,
	"NotAMember":             http.StatusForbidden,
	"AlreadyEliminated":      http.StatusConflict,
	"AlreadyStarted":         http.StatusConflict,
	"Full":                   http.StatusConflict,
	"Unauthorized":           http.StatusForbidden,
	"InvalidConfig":          http.StatusBadRequest,
	"NotReady":               http.StatusConflict,
	"ExternalServiceFailure": http.StatusBadGateway,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorBody{Kind: kind, Message: msg})
}

// writeGameError maps a Manager error to its HTTP status. Unknown errors are logged and
// reported as Internal without their text.
func writeGameError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	kind := game.ErrorKind(err)
	status, ok := kindStatus[kind]
	if !ok {
		logger.Errorf("unhandled error: %v", err)
		writeError(w, http.StatusInternalServerError, kind, "internal error")
		return
	}
	writeError(w, status, kind, err.Error())
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
}
