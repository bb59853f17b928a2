// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"

	"github.com/bureau-foundation/quickplay/lib/codec"
	"github.com/bureau-foundation/quickplay/lib/service"
)

type recordRequest struct {
	ID          string            `cbor:"id"`
	Participant string            `cbor:"participant,omitempty"`
	Fields      map[string]string `cbor:"fields,omitempty"`
}

func decodeRequest(raw []byte, target any) error {
	if err := codec.Unmarshal(raw, target); err != nil {
		return invalid("malformed request: %v", err)
	}
	return nil
}

func decodeRecordRequest(raw []byte) (recordRequest, error) {
	var request recordRequest
	if err := decodeRequest(raw, &request); err != nil {
		return request, err
	}
	if request.ID == "" {
		return request, invalid("id is required")
	}
	return request, nil
}

// RegisterHandlers exposes backend on server under the directory
// actions. Errors keep their directory codes across the socket.
func RegisterHandlers(server *service.SocketServer, backend Directory) {
	server.Handle(string(OpSearch), func(ctx context.Context, raw []byte) (any, error) {
		var filter Filter
		if err := decodeRequest(raw, &filter); err != nil {
			return nil, err
		}
		if filter.State != "" && !filter.State.Valid() {
			return nil, invalid("unknown state %q", filter.State)
		}
		records, err := backend.Search(ctx, filter)
		if err != nil {
			return nil, err
		}
		return searchResponse{Records: records}, nil
	})

	server.Handle(string(OpCreate), func(ctx context.Context, raw []byte) (any, error) {
		var request CreateRequest
		if err := decodeRequest(raw, &request); err != nil {
			return nil, err
		}
		return backend.Create(ctx, request)
	})

	server.Handle(string(OpJoin), func(ctx context.Context, raw []byte) (any, error) {
		request, err := decodeRecordRequest(raw)
		if err != nil {
			return nil, err
		}
		return backend.Join(ctx, request.ID, request.Participant)
	})

	server.Handle(string(OpGet), func(ctx context.Context, raw []byte) (any, error) {
		request, err := decodeRecordRequest(raw)
		if err != nil {
			return nil, err
		}
		return backend.Get(ctx, request.ID)
	})

	server.Handle(string(OpUpdate), func(ctx context.Context, raw []byte) (any, error) {
		request, err := decodeRecordRequest(raw)
		if err != nil {
			return nil, err
		}
		return nil, backend.Update(ctx, request.ID, request.Fields)
	})

	server.Handle(string(OpHeartbeat), func(ctx context.Context, raw []byte) (any, error) {
		request, err := decodeRecordRequest(raw)
		if err != nil {
			return nil, err
		}
		return nil, backend.Heartbeat(ctx, request.ID)
	})

	server.Handle(string(OpLeave), func(ctx context.Context, raw []byte) (any, error) {
		request, err := decodeRecordRequest(raw)
		if err != nil {
			return nil, err
		}
		return nil, backend.Leave(ctx, request.ID, request.Participant)
	})

	server.Handle(string(OpDelete), func(ctx context.Context, raw []byte) (any, error) {
		request, err := decodeRecordRequest(raw)
		if err != nil {
			return nil, err
		}
		return nil, backend.Delete(ctx, request.ID)
	})
}
