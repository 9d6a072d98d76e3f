package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/notify"
	"github.com/kandev/kaiak/pkg/jsonrpc"
)

// Conn wires one Server against a single bidirectional framed stream:
// requests/notifications come in over r, responses and subscribed
// outbound notifications go out over w, serialised by a single writer
// mutex since notifications and responses share one wire.
type Conn struct {
	server *Server
	sink   notify.Sink
	reader *bufio.Reader
	writer io.Writer
	wmu    sync.Mutex
	logger *logger.Logger
}

// NewConn wraps rw as a framed JSON-RPC connection served by server,
// whose outbound notifications are drawn from sink.
func NewConn(server *Server, sink notify.Sink, r io.Reader, w io.Writer, log *logger.Logger) *Conn {
	return &Conn{
		server: server,
		sink:   sink,
		reader: bufio.NewReader(r),
		writer: w,
		logger: log.WithFields(zap.String("component", "rpc-conn")),
	}
}

// Serve reads framed requests until EOF, ctx cancellation, or a fatal
// framing error, dispatching each to the Server and writing back
// responses and any outbound notifications published meanwhile.
func (c *Conn) Serve(ctx context.Context) error {
	unsubscribe := c.sink.Subscribe(func(n jsonrpc.OutboundNotification) {
		if err := c.writeNotification(n); err != nil {
			c.logger.Warn("failed to write outbound notification", zap.Error(err))
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		body, err := jsonrpc.ReadMessage(c.reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		var req jsonrpc.Request
		if err := json.Unmarshal(body, &req); err != nil {
			c.writeResponse(jsonrpc.NewErrorResponse(nil, jsonrpc.CodeParseError, "malformed request: "+err.Error(), nil))
			continue
		}
		req.JSONRPC = "2.0"

		go func(req jsonrpc.Request) {
			resp := c.server.Handle(ctx, req)
			if resp != nil {
				c.writeResponse(*resp)
			}
		}(req)
	}
}

func (c *Conn) writeResponse(resp jsonrpc.Response) {
	resp.JSONRPC = "2.0"
	raw, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("failed to marshal response", zap.Error(err))
		return
	}
	c.write(raw)
}

func (c *Conn) writeNotification(n jsonrpc.OutboundNotification) error {
	note, err := jsonrpc.NewNotification(notificationMethod(n.Kind), n)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(note)
	if err != nil {
		return err
	}
	return c.write(raw)
}

func (c *Conn) write(raw []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return jsonrpc.WriteMessage(c.writer, raw)
}

// notificationMethod namespaces every outbound notification kind under
// "kaiak/event", giving one server->client method per kind
// ("kaiak/event/<kind>").
func notificationMethod(kind jsonrpc.NotificationKind) string {
	return "kaiak/event/" + string(kind)
}

// ServeStdio serves one connection over the process's stdin/stdout,
// used by `kaiak serve --transport stdio`.
func ServeStdio(ctx context.Context, server *Server, sink notify.Sink, log *logger.Logger) error {
	conn := NewConn(server, sink, os.Stdin, os.Stdout, log)
	return conn.Serve(ctx)
}

// ServeSocket listens on a Unix domain socket at path, restricted to the
// owner (0o600), and serves each accepted connection on its own
// goroutine with a fresh JSON-RPC dispatcher.
func ServeSocket(ctx context.Context, path string, server *Server, sink notify.Sink, log *logger.Logger) error {
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := os.Chmod(path, 0o600); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var group errgroup.Group
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				err = nil
			default:
			}
			// Wait for in-flight connections to finish their requests
			// before tearing the listener's process context down.
			if werr := group.Wait(); err == nil {
				err = werr
			}
			return err
		}

		group.Go(func() error {
			defer nc.Close()
			// Unblock the framed read loop when the listener's context is
			// torn down; otherwise an idle client would stall group.Wait.
			stop := context.AfterFunc(ctx, func() { _ = nc.Close() })
			defer stop()
			conn := NewConn(server, sink, nc, nc, log)
			if err := conn.Serve(ctx); err != nil && err != io.EOF && ctx.Err() == nil {
				log.Warn("connection closed with error", zap.Error(err))
			}
			return nil
		})
	}
}
