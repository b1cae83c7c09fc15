// internal/handlers/ws_codes.go
package handlers

// Application close codes sent on /game/ws.
const (
	BadSubprotocolError = 3000 // Client did not negotiate the rps subprotocol.
)
