package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type ClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Headers     http.Header
	OnText      func(data []byte) error
	Logger      *slog.Logger
}

type Client struct {
	out      chan wsutil.Message
	done     chan struct{}
	doneOnce sync.Once
	logger   *slog.Logger
}

func (c *Client) setDone() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed when the connection has terminated, cleanly or not.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) WriteText(data []byte) {
	c.write(ws.OpText, data)
}

func (c *Client) SendClose(code ws.StatusCode, reason string) {
	c.write(ws.OpClose, ws.NewCloseFrameBody(code, reason))
}

func (c *Client) Close(ctx context.Context) error {
	c.SendClose(ws.StatusNormalClosure, "closing")
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close failed: %w", ctx.Err())
	}
}

func (c *Client) write(opcode ws.OpCode, data []byte) {
	select {
	case c.out <- wsutil.Message{OpCode: opcode, Payload: data}:
	case <-c.done:
	}
}

func Connect(ctx context.Context, config ClientConfig) (*Client, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With(slog.String("url", config.URL))

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	d := ws.Dialer{
		Timeout: dialTimeout,
		Header:  ws.HandshakeHeaderHTTP(config.Headers),
	}
	conn, buf, _, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, err
	}
	if buf != nil {
		defer ws.PutReader(buf)
	}

	logger.Debug("websocket connected")

	var (
		input  = make(chan wsutil.Message, 1000)
		output = make(chan wsutil.Message, 1000)
	)

	client := &Client{
		out:    output,
		done:   make(chan struct{}),
		logger: logger,
	}

	onText := config.OnText
	if onText == nil {
		onText = func([]byte) error { return nil }
	}

	// reader
	go func() {
		defer client.setDone()
		for {
			messages, err := wsutil.ReadServerMessage(conn, nil)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logger.Error("ws read failed", slog.Any("err", err))
				}
				return
			}
			for _, msg := range messages {
				input <- msg
			}
		}
	}()

	// writer
	go func() {
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.done:
				return
			case msg := <-output:
				if err := wsutil.WriteClientMessage(conn, msg.OpCode, msg.Payload); err != nil {
					logger.Error("ws write failed", slog.Any("err", err))
					client.setDone()
					return
				}
			}
		}
	}()

	// inbound processing; text frames are handled strictly in arrival order
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.done:
				return
			case msg := <-input:
				if ws.OpCode.IsControl(msg.OpCode) {
					if err := wsutil.HandleServerControlMessage(conn, msg); err != nil {
						logger.Error("control message handling failed", slog.Any("err", err))
					}
					if msg.OpCode == ws.OpClose {
						logger.Debug("rcv: close", slog.String("reason", string(msg.Payload)))
						client.setDone()
					}
					continue
				}

				if msg.OpCode == ws.OpText {
					if err := onText(msg.Payload); err != nil {
						logger.Error("text message handler failed", slog.Any("err", err))
					}
				}
			}
		}
	}()

	return client, nil
}
