package protocol

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/yndnr/ussal-go/internal/core/domain"
)

// ReadMessage reads one frame from conn and decodes it. Binary frames are a
// protocol violation.
func ReadMessage(conn *websocket.Conn) (*Message, error) {
	kind, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind != websocket.TextMessage {
		return nil, domain.ErrProtocolViolation.WithDetails("binary frame")
	}
	return Decode(data)
}

// WriteMessage encodes m and writes it as a text frame. A zero deadline
// means no write deadline.
//
// Callers must not invoke WriteMessage concurrently on the same conn.
func WriteMessage(conn *websocket.Conn, m *Message, deadline time.Time) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// CloseNormal sends a close frame with the given code and text.
func CloseNormal(conn *websocket.Conn, code int, text string, deadline time.Time) error {
	msg := websocket.FormatCloseMessage(code, text)
	return conn.WriteControl(websocket.CloseMessage, msg, deadline)
}
