// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"

	"github.com/google/uuid"
)

// Compile-time interface checks.
var (
	_ Provisioner = (*TCPProvisioner)(nil)
	_ Runtime     = (*TCPRuntime)(nil)
)

// TCPProvisioner allocates direct TCP routes. Each allocation reserves
// its own listener so the port is known before the join token is
// published. Requires direct reachability between host and clients.
type TCPProvisioner struct {
	// BindAddress is the listen address, e.g. "127.0.0.1:0" or
	// "0.0.0.0:7777". Port 0 picks a free port per allocation.
	BindAddress string

	// AdvertiseHost replaces the listener host in join tokens. When
	// empty, a wildcard listener advertises 127.0.0.1.
	AdvertiseHost string

	Logger *slog.Logger
}

func (p *TCPProvisioner) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

// Allocate reserves a listener and mints a join token for it.
func (p *TCPProvisioner) Allocate(ctx context.Context, maxConnections int) (*Allocation, error) {
	if maxConnections < 1 {
		return nil, fmt.Errorf("relay: maxConnections must be at least 1, got %d", maxConnections)
	}

	bind := p.BindAddress
	if bind == "" {
		bind = "127.0.0.1:0"
	}
	var listenConfig net.ListenConfig
	listener, err := listenConfig.Listen(ctx, "tcp", bind)
	if err != nil {
		return nil, fmt.Errorf("relay: listening on %s: %w", bind, err)
	}

	secret := make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		listener.Close()
		return nil, fmt.Errorf("relay: generating allocation secret: %w", err)
	}

	address := p.advertisedAddress(listener.Addr())
	allocation := &Allocation{
		ID:             uuid.NewString(),
		MaxConnections: maxConnections,
		listener:       listener,
		secret:         secret,
	}
	allocation.JoinToken, err = encodeJoinToken(joinToken{
		AllocationID: allocation.ID,
		Address:      address,
		Secret:       secret,
	})
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("relay: encoding join token: %w", err)
	}

	p.logger().Info("relay allocated",
		"allocation_id", allocation.ID,
		"address", address,
		"max_connections", maxConnections,
	)
	return allocation, nil
}

func (p *TCPProvisioner) advertisedAddress(listenAddress net.Addr) string {
	host, port, err := net.SplitHostPort(listenAddress.String())
	if err != nil {
		return listenAddress.String()
	}
	switch {
	case p.AdvertiseHost != "":
		host = p.AdvertiseHost
	case net.ParseIP(host) != nil && net.ParseIP(host).IsUnspecified():
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// Join decodes and validates a join token. The host is not contacted
// until StartClient.
func (p *TCPProvisioner) Join(ctx context.Context, raw string) (*JoinAllocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token, err := decodeJoinToken(raw)
	if err != nil {
		return nil, err
	}
	return &JoinAllocation{
		AllocationID: token.AllocationID,
		Address:      token.Address,
		secret:       token.Secret,
	}, nil
}
