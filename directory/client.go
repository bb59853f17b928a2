// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"errors"
	"time"

	"github.com/bureau-foundation/quickplay/lib/service"
)

// Client is a Directory backed by a directory socket.
type Client struct {
	service *service.ServiceClient
	timeout time.Duration
}

// NewClient returns a client for the directory socket at socketPath.
// Each call is bounded by timeout (zero means no bound beyond the
// caller's context).
func NewClient(socketPath string, timeout time.Duration) *Client {
	return &Client{
		service: service.NewServiceClient(socketPath),
		timeout: timeout,
	}
}

type searchResponse struct {
	Records []Record `cbor:"records"`
}

func (c *Client) call(ctx context.Context, op Op, fields map[string]any, result any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	err := c.service.Call(ctx, string(op), fields, result)
	var serviceErr *service.ServiceError
	if errors.As(err, &serviceErr) {
		code := serviceErr.Code
		if code == "" {
			code = CodeUnavailable
		}
		return &Error{Code: code, Message: serviceErr.Message}
	}
	return err
}

func (c *Client) Search(ctx context.Context, filter Filter) ([]Record, error) {
	var response searchResponse
	err := c.call(ctx, OpSearch, map[string]any{
		"state":               string(filter.State),
		"min_available_slots": filter.MinAvailableSlots,
		"limit":               filter.Limit,
		"offset":              filter.Offset,
	}, &response)
	if err != nil {
		return nil, err
	}
	if response.Records == nil {
		response.Records = []Record{}
	}
	return response.Records, nil
}

func (c *Client) Create(ctx context.Context, request CreateRequest) (*Record, error) {
	var record Record
	err := c.call(ctx, OpCreate, map[string]any{
		"name":     request.Name,
		"host_id":  request.HostID,
		"capacity": request.Capacity,
		"data":     request.Data,
	}, &record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) Join(ctx context.Context, id, participant string) (*Record, error) {
	var record Record
	if err := c.call(ctx, OpJoin, map[string]any{"id": id, "participant": participant}, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) Get(ctx context.Context, id string) (*Record, error) {
	var record Record
	if err := c.call(ctx, OpGet, map[string]any{"id": id}, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) Update(ctx context.Context, id string, fields map[string]string) error {
	return c.call(ctx, OpUpdate, map[string]any{"id": id, "fields": fields}, nil)
}

func (c *Client) Heartbeat(ctx context.Context, id string) error {
	return c.call(ctx, OpHeartbeat, map[string]any{"id": id}, nil)
}

func (c *Client) Leave(ctx context.Context, id, participant string) error {
	return c.call(ctx, OpLeave, map[string]any{"id": id, "participant": participant}, nil)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.call(ctx, OpDelete, map[string]any{"id": id}, nil)
}
