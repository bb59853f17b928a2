// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/quickplay/lib/codec"
	"github.com/bureau-foundation/quickplay/lib/testutil"
)

type codedError struct{ code string }

func (e *codedError) Error() string     { return "coded failure: " + e.code }
func (e *codedError) ErrorCode() string { return e.code }

type echoRequest struct {
	Action string `cbor:"action"`
	Name   string `cbor:"name"`
}

type echoResponse struct {
	Greeting string `cbor:"greeting"`
}

// startServer starts a server with a few test actions and returns its
// socket path. The server is stopped when the test completes.
func startServer(t *testing.T) string {
	t.Helper()

	socketPath := filepath.Join(testutil.SocketDir(t), "test.sock")
	server := NewSocketServer(socketPath, nil)

	server.Handle("echo", func(ctx context.Context, raw []byte) (any, error) {
		var request echoRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		return echoResponse{Greeting: "hello " + request.Name}, nil
	})
	server.Handle("empty", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})
	server.Handle("fail", func(ctx context.Context, raw []byte) (any, error) {
		return nil, fmt.Errorf("wrapped: %w", &codedError{code: "not_found"})
	})
	server.Handle("plainfail", func(ctx context.Context, raw []byte) (any, error) {
		return nil, errors.New("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "server shutdown"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return socketPath
}

func TestCallDecodesData(t *testing.T) {
	client := NewServiceClient(startServer(t))

	var response echoResponse
	if err := client.Call(context.Background(), "echo", map[string]any{"name": "lobby"}, &response); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if response.Greeting != "hello lobby" {
		t.Errorf("Greeting = %q, want %q", response.Greeting, "hello lobby")
	}

	if err := client.Call(context.Background(), "empty", nil, nil); err != nil {
		t.Fatalf("Call empty: %v", err)
	}
}

func TestCallCarriesErrorCode(t *testing.T) {
	client := NewServiceClient(startServer(t))

	err := client.Call(context.Background(), "fail", nil, nil)
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("Call error = %v, want *ServiceError", err)
	}
	if serviceErr.Code != "not_found" {
		t.Errorf("Code = %q, want %q", serviceErr.Code, "not_found")
	}
	if serviceErr.Action != "fail" {
		t.Errorf("Action = %q, want %q", serviceErr.Action, "fail")
	}

	err = client.Call(context.Background(), "plainfail", nil, nil)
	if !errors.As(err, &serviceErr) {
		t.Fatalf("Call error = %v, want *ServiceError", err)
	}
	if serviceErr.Code != "" || serviceErr.Message != "boom" {
		t.Errorf("got code %q message %q, want empty code and %q", serviceErr.Code, serviceErr.Message, "boom")
	}
}

func TestUnknownAndMissingAction(t *testing.T) {
	socketPath := startServer(t)
	client := NewServiceClient(socketPath)

	err := client.Call(context.Background(), "nope", nil, nil)
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("Call error = %v, want *ServiceError", err)
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if err := codec.NewEncoder(conn).Encode(map[string]any{"name": "x"}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if response.OK || response.Error != "missing required field: action" {
		t.Errorf("got %+v, want missing action error", response)
	}
}

func TestCallWithoutServer(t *testing.T) {
	client := NewServiceClient(filepath.Join(testutil.SocketDir(t), "absent.sock"))
	err := client.Call(context.Background(), "echo", nil, nil)
	if err == nil {
		t.Fatal("Call succeeded without a server")
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		t.Errorf("connection failure returned *ServiceError, want plain error")
	}
}

func TestConcurrentCalls(t *testing.T) {
	client := NewServiceClient(startServer(t))

	const callers = 16
	var waitGroup sync.WaitGroup
	errs := make(chan error, callers)
	for i := range callers {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			name := fmt.Sprintf("caller-%d", i)
			var response echoResponse
			if err := client.Call(context.Background(), "echo", map[string]any{"name": name}, &response); err != nil {
				errs <- err
				return
			}
			if response.Greeting != "hello "+name {
				errs <- fmt.Errorf("got %q for %s", response.Greeting, name)
			}
		}()
	}
	waitGroup.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestDuplicateHandlerPanics(t *testing.T) {
	server := NewSocketServer("/unused", nil)
	server.Handle("a", func(context.Context, []byte) (any, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Error("duplicate Handle did not panic")
		}
	}()
	server.Handle("a", func(context.Context, []byte) (any, error) { return nil, nil })
}
