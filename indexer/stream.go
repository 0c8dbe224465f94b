package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"

	"otoledger/rpc"
)

// maxMessageBytes bounds a single stream frame.
const maxMessageBytes = 1 << 20

// stream dials url and hands every message to handle until the connection
// closes, ctx ends or handle fails.
func stream(ctx context.Context, url, token string, handle func(rpc.StreamMessage) error) error {
	opts := &websocket.DialOptions{}
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return fmt.Errorf("indexer: dial %s: %w", url, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "indexer stopping")
	conn.SetReadLimit(maxMessageBytes)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg rpc.StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("indexer: decode stream message: %w", err)
		}
		if err := handle(msg); err != nil {
			return err
		}
	}
}
