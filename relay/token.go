// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"fmt"
	"net"

	"github.com/bureau-foundation/quickplay/lib/codec"
)

// secretSize is the length of a per-allocation secret in bytes.
const secretSize = 32

// joinToken is the decoded form of a TCP join token.
type joinToken struct {
	AllocationID string `cbor:"id"`
	Address      string `cbor:"address"`
	Secret       []byte `cbor:"secret"`
}

func encodeJoinToken(token joinToken) (string, error) {
	return codec.EncodeToken(token)
}

func decodeJoinToken(raw string) (joinToken, error) {
	var token joinToken
	if raw == "" {
		return token, fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	if err := codec.DecodeToken(raw, &token); err != nil {
		return token, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if token.AllocationID == "" {
		return token, fmt.Errorf("%w: missing allocation id", ErrInvalidToken)
	}
	if _, _, err := net.SplitHostPort(token.Address); err != nil {
		return token, fmt.Errorf("%w: address %q: %v", ErrInvalidToken, token.Address, err)
	}
	if len(token.Secret) != secretSize {
		return token, fmt.Errorf("%w: secret is %d bytes, want %d", ErrInvalidToken, len(token.Secret), secretSize)
	}
	return token, nil
}
