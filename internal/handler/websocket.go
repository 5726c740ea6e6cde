package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"transitcat/internal/requests"
)

const sendBuffer = 64

// WSHandler answers stat requests over a WebSocket. Every text message is
// one request and gets exactly one answer; {"type":"ping"} gets a pong.
type WSHandler struct {
	requests *requests.Handler
	logger   *slog.Logger
}

func NewWSHandler(reqs *requests.Handler, logger *slog.Logger) *WSHandler {
	return &WSHandler{requests: reqs, logger: logger.With("handler", "ws")}
}

type PongMessage struct {
	Type string `json:"type"`
}

type wsClient struct {
	id   string
	send chan []byte
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := &wsClient{id: uuid.New().String(), send: make(chan []byte, sendBuffer)}
	ServerStats.IncWSConnections()
	h.logger.Debug("websocket connected", "client_id", client.id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *wsClient) {
	defer func() {
		ServerStats.DecWSConnections()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.id, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}
		ServerStats.IncWSMessagesIn()

		var req requests.StatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.id, "error", err)
			h.send(client, requests.Answer{ErrorMessage: "invalid request: malformed JSON"})
			continue
		}

		if req.Type == "ping" {
			h.send(client, PongMessage{Type: "pong"})
			continue
		}
		h.send(client, h.requests.Answer(req))
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-client.send:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
			ServerStats.IncWSMessagesOut()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) send(client *wsClient, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	select {
	case client.send <- data:
	default:
		h.logger.Debug("dropping message, buffer full", "client_id", client.id)
	}
}
