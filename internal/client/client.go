// Package client dials a user's daemon and wraps the queue API in plain Go
// types.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/matheus3301/offsync/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn  *grpc.ClientConn
	Queue *api.QueueServiceClient
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{
		conn:  conn,
		Queue: api.NewQueueServiceClient(conn),
	}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Enqueue queues a JSON object of the given entry type and returns the
// entry id.
func (c *Client) Enqueue(ctx context.Context, entryType string, payload []byte) (string, error) {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return "", fmt.Errorf("payload must be a JSON object: %w", err)
	}
	req, err := structpb.NewStruct(map[string]any{"type": entryType, "payload": obj})
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	resp, err := c.Queue.Enqueue(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.GetFields()["id"].GetStringValue(), nil
}

// Remove deletes an entry by id.
func (c *Client) Remove(ctx context.Context, id string) error {
	_, err := c.Queue.Remove(ctx, wrapperspb.String(id))
	return err
}

// Sync runs a pass and returns its result.
func (c *Client) Sync(ctx context.Context) (*SyncResult, error) {
	resp, err := c.Queue.Sync(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	var out SyncResult
	return &out, decode(resp, &out)
}

// Status returns the queue and connectivity state.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	resp, err := c.Queue.Status(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	var out Status
	return &out, decode(resp, &out)
}

// Clear drops every entry.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.Queue.Clear(ctx, &emptypb.Empty{})
	return err
}

// SetOnline pins connectivity on or off.
func (c *Client) SetOnline(ctx context.Context, online bool) error {
	_, err := c.Queue.SetOnline(ctx, wrapperspb.Bool(online))
	return err
}

// Probe releases a pinned state and probes the remote once.
func (c *Client) Probe(ctx context.Context) (*ProbeResult, error) {
	resp, err := c.Queue.Probe(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	var out ProbeResult
	return &out, decode(resp, &out)
}

// History returns up to limit sync passes, most recent first.
func (c *Client) History(ctx context.Context, limit int) ([]Pass, error) {
	resp, err := c.Queue.History(ctx, wrapperspb.Int32(int32(limit)))
	if err != nil {
		return nil, err
	}
	var out struct {
		Passes []Pass `json:"passes"`
	}
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return out.Passes, nil
}

// Watch calls fn for every event until ctx is done or the daemon closes the
// stream.
func (c *Client) Watch(ctx context.Context, fn func(Event)) error {
	stream, err := c.Queue.WatchEvents(ctx, &emptypb.Empty{})
	if err != nil {
		return err
	}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var evt Event
		if err := decode(msg, &evt); err != nil {
			return err
		}
		fn(evt)
	}
}

// decode maps a Struct onto out through its JSON form.
func decode(s *structpb.Struct, out any) error {
	raw, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
