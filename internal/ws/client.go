package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/guardian/internal/relay"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// Client pumps frames between one WebSocket connection and its relay session.
type Client struct {
	conn         *websocket.Conn
	session      *relay.Session
	sessions     *relay.SessionManager
	writeTimeout time.Duration
	logger       *zap.Logger
}

// writePump drains the session's outbound queue onto the connection. It
// returns when the queue is closed or a write fails.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.session.Outbound():
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := wsjson.Write(writeCtx, c.conn, msg)
			cancel()
			if err != nil {
				c.logger.Debug("websocket write error",
					zap.String("session_id", c.session.ID()),
					zap.Error(err),
				)
				return
			}
		}
	}
}

// readPump handles client frames until the peer goes away. A frame that
// does not decode gets an error reply and the connection stays open, so
// frames are decoded here rather than through wsjson.Read, which closes
// the connection on bad JSON.
func (c *Client) readPump(ctx context.Context) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				c.logger.Debug("websocket closed by peer",
					zap.String("session_id", c.session.ID()),
					zap.Int("status", int(status)),
				)
			}
			return
		}
		if typ != websocket.MessageText {
			c.reply(relay.ErrorMessage("expected a text frame"))
			continue
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.reply(relay.ErrorMessage("malformed frame"))
			continue
		}
		c.handle(f)
	}
}

func (c *Client) handle(f Frame) {
	switch f.Type {
	case FrameJoinDevice:
		deviceID := f.Device()
		if err := c.sessions.Join(c.session, deviceID); err != nil {
			c.reply(relay.ErrorMessage(err.Error()))
			return
		}
		c.reply(relay.JoinedMessage(deviceID))
	default:
		c.reply(relay.ErrorMessage(fmt.Sprintf("unknown frame type %q", f.Type)))
	}
}

// reply queues a control message behind any events already pending.
func (c *Client) reply(m relay.Message) {
	if err := c.session.Enqueue(m); err != nil && !errors.Is(err, relay.ErrSessionClosed) {
		c.logger.Debug("dropping reply",
			zap.String("session_id", c.session.ID()),
			zap.String("event", m.Event),
			zap.Error(err),
		)
	}
}
