package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mihastele/social-space-harry/internal/config"
	"github.com/mihastele/social-space-harry/internal/domain"
	"github.com/mihastele/social-space-harry/pkg/log"
)

// Client is one accepted WebSocket connection. Only Run writes data frames
// to Conn; everyone else goes through Send.
type Client struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	session *domain.Session
	config  config.WebSocketConfig

	writeErr error
}

func NewClient(id string, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	cfg = withDefaults(cfg)
	return &Client{
		ID:      id,
		Conn:    conn,
		Send:    make(chan []byte, cfg.SendBuffer),
		session: domain.NewSession(id),
		config:  cfg,
	}
}

func withDefaults(cfg config.WebSocketConfig) config.WebSocketConfig {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = 2 * cfg.PingInterval
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return cfg
}

func (c *Client) HandleID() string {
	return c.ID
}

func (c *Client) Session() *domain.Session {
	return c.session
}

// Enqueue hands data to the connection without blocking. It reports false
// when the send buffer is full.
func (c *Client) Enqueue(data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Reply writes f straight to the socket. It must only be called from the
// goroutine running Run, i.e. from inside a FrameHandler.
func (c *Client) Reply(f domain.Frame) error {
	data, err := domain.EncodeFrame(f)
	if err != nil {
		return err
	}
	if err := c.write(websocket.TextMessage, data); err != nil {
		c.writeErr = err
		return err
	}
	return nil
}

func (c *Client) write(messageType int, data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
	return c.Conn.WriteMessage(messageType, data)
}

// Run drives the connection until the transport closes, a write fails or
// ctx is cancelled. It multiplexes inbound frames, queued outbound frames
// and the ping ticker on one goroutine. handler.HandleDisconnect runs exactly
// once on every exit path, followed by closing the socket.
func (c *Client) Run(ctx context.Context, handler FrameHandler) {
	ctx = log.WithFields(ctx, log.FieldClientID, c.ID)
	l := log.Ctx(ctx)

	inbound := make(chan []byte)
	readerDone := make(chan struct{})
	stop := make(chan struct{})
	ticker := time.NewTicker(c.config.PingInterval)

	defer func() {
		if r := recover(); r != nil {
			l.Error().Str("panic", fmt.Sprint(r)).Msg("connection handler panicked")
		}
		ticker.Stop()
		close(stop)
		handler.HandleDisconnect(ctx, c)
		c.Conn.Close()
	}()

	go c.readLoop(l, inbound, readerDone, stop)

	for {
		select {
		case data := <-inbound:
			c.session.UpdateActivity()
			handler.HandleFrame(ctx, c, data)
			if c.writeErr != nil {
				l.Debug().Err(c.writeErr).Msg("write failed, closing connection")
				return
			}

		case data := <-c.Send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				l.Debug().Err(err).Msg("write failed, closing connection")
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-readerDone:
			return

		case <-ctx.Done():
			c.Conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(c.config.WriteWait),
			)
			return
		}
	}
}

func (c *Client) readLoop(l zerolog.Logger, inbound chan<- []byte, done chan<- struct{}, stop <-chan struct{}) {
	defer close(done)

	if c.config.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})
	// Client pings also count as liveness; the reply is a control frame,
	// which gorilla allows concurrently with Run's writes.
	c.Conn.SetPingHandler(func(appData string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		err := c.Conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.config.WriteWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		select {
		case inbound <- message:
		case <-stop:
			return
		}
	}
}
