// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/quickplay/lib/codec"
)

// Frame types on a relay connection. The client sends hello; every
// other frame flows host to client.
const (
	frameHello      = "hello"
	frameWelcome    = "welcome"
	frameReject     = "reject"
	framePeerJoined = "peer_joined"
	framePeerLeft   = "peer_left"
	frameScene      = "scene"
)

type frame struct {
	Type         string `cbor:"type"`
	AllocationID string `cbor:"allocation_id,omitempty"`
	Participant  string `cbor:"participant,omitempty"`
	Secret       []byte `cbor:"secret,omitempty"`
	Count        int    `cbor:"count,omitempty"`
	Scene        string `cbor:"scene,omitempty"`
	Reason       string `cbor:"reason,omitempty"`
}

// frameWriteTimeout bounds a single frame write so one stalled peer
// cannot hold up a broadcast indefinitely.
const frameWriteTimeout = 5 * time.Second

// frameConn is a connection with a serialized CBOR encoder.
type frameConn struct {
	conn    net.Conn
	decoder *codec.Decoder

	writeMu sync.Mutex
	encoder *codec.Encoder
}

func newFrameConn(conn net.Conn) *frameConn {
	return &frameConn{
		conn:    conn,
		decoder: codec.NewDecoder(conn),
		encoder: codec.NewEncoder(conn),
	}
}

func (c *frameConn) send(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
	return c.encoder.Encode(f)
}

func (c *frameConn) receive() (frame, error) {
	var f frame
	err := c.decoder.Decode(&f)
	return f, err
}

func (c *frameConn) close() error {
	return c.conn.Close()
}
