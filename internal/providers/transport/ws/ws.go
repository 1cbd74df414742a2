// Package ws upgrades an inbound HTTP request to the media WebSocket
// transport.Conn the session orchestrator drives.
package ws

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/agentplexus/voiceengine/transport"
)

// Upgrader wraps gorilla/websocket's Upgrader with 4 KiB I/O buffers; the
// media protocol's frame cap is applied separately by transport.NewWSConn.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Accept upgrades r and wraps the resulting connection as a transport.Conn
// bound to callID.
func Accept(w http.ResponseWriter, r *http.Request, callID string) (*transport.WSConn, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return transport.NewWSConn(callID, conn), nil
}
