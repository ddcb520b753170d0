package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// PongWait bounds how long a silent client is kept.
	PongWait = 60 * time.Second
	// PingPeriod must stay below PongWait.
	PingPeriod = PongWait * 9 / 10
)

// WriteTyped sends a strongly-typed payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{Event: EventError, Error: errMsg})
}

// WritePing sends a control ping.
func WritePing(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// WriteClose sends a normal close frame with reason.
func WriteClose(conn *websocket.Conn, reason string) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// ReadJSON reads and decodes a message. Every read extends the deadline.
func ReadJSON(conn *websocket.Conn, v any) error {
	conn.SetReadDeadline(time.Now().Add(PongWait))
	return conn.ReadJSON(v)
}

// KeepAlive extends the read deadline on every pong.
func KeepAlive(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})
}
