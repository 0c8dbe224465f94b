package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"otoledger/core/events"
	"otoledger/observability"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 256
)

// StreamMessage is one committed event as delivered on /ws.
type StreamMessage struct {
	TxHash     string            `json:"txHash"`
	Op         string            `json:"op"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// handleEventStream upgrades the request and forwards committed events until
// the client disconnects. The optional "types" query parameter is a comma
// separated allowlist of event types.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	filter := parseTypeFilter(r.URL.Query().Get("types"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Reads are only needed to observe the close handshake.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, filter map[string]struct{}) error {
	updates, cancel := s.node.Subscribe(wsBuffer)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			committed, ok := evt.(events.Committed)
			if !ok || committed.Evt == nil {
				continue
			}
			if len(filter) > 0 {
				if _, want := filter[committed.Evt.Type]; !want {
					continue
				}
			}
			if err := writeStreamMessage(ctx, conn, committed); err != nil {
				observability.Events().RecordDropped()
				return err
			}
		}
	}
}

func writeStreamMessage(ctx context.Context, conn *websocket.Conn, committed events.Committed) error {
	data, err := json.Marshal(StreamMessage{
		TxHash:     committed.TxHash,
		Op:         committed.Op,
		Type:       committed.Evt.Type,
		Attributes: committed.Evt.Attributes,
	})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func parseTypeFilter(raw string) map[string]struct{} {
	filter := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			filter[part] = struct{}{}
		}
	}
	return filter
}
