// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the match socket.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	InvalidMatchIDError = 3003 // Target match was evicted while the client was connecting.
)
