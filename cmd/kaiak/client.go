package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/kandev/kaiak/pkg/jsonrpc"
)

// rpcClient is a minimal JSON-RPC client over the host's Unix socket
// transport: one request, with server->client notifications streamed
// to a Renderer until the response for that request arrives.
type rpcClient struct {
	conn   net.Conn
	reader *bufio.Reader
	nextID int64
}

func dial(socketPath string) (*rpcClient, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	return &rpcClient{conn: conn, reader: bufio.NewReader(conn)}, nil
}

func (c *rpcClient) Close() error { return c.conn.Close() }

// Call sends method/params as a request and blocks until the matching
// response arrives, printing every notification observed in the
// meantime via render.
func (c *rpcClient) Call(ctx context.Context, method string, params any, result any, render *Renderer) error {
	id := atomic.AddInt64(&c.nextID, 1)
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	req := jsonrpc.Request{JSONRPC: "2.0", ID: id, Method: method, Params: raw}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := jsonrpc.WriteMessage(c.conn, body); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := jsonrpc.ReadMessage(c.reader)
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		var envelope struct {
			ID     any    `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(msg, &envelope); err != nil {
			render.Error("malformed message from host: %v", err)
			continue
		}

		if envelope.ID == nil && envelope.Method != "" {
			c.handleNotification(msg, render)
			continue
		}

		var resp jsonrpc.Response
		if err := json.Unmarshal(msg, &resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if resp.Error != nil {
			return fmt.Errorf("%s (code %d)", resp.Error.Message, resp.Error.Code)
		}
		if result != nil {
			return json.Unmarshal(resp.Result, result)
		}
		return nil
	}
}

func (c *rpcClient) handleNotification(msg []byte, render *Renderer) {
	var notif struct {
		Params jsonrpc.OutboundNotification `json:"params"`
	}
	if err := json.Unmarshal(msg, &notif); err != nil {
		render.Error("malformed notification: %v", err)
		return
	}
	render.Notification(string(notif.Params.Kind), notif.Params.SessionID, notif.Params.Payload)
}
