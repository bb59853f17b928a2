// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the CBOR request/response protocol used by
// the session directory socket.
//
// Each connection carries exactly one request and one response. The
// client writes a CBOR map containing an "action" field plus
// action-specific fields; the server routes on the action, runs the
// registered [ActionFunc], and writes a [Response] envelope:
//
//	{ok: true, data: <cbor>}
//	{ok: false, error: "message", code: "not_found"}
//
// A handler error that implements ErrorCode() string carries its code
// across the socket, so the client side can rebuild a typed error from
// a [ServiceError] without parsing message text.
//
// The socket path itself is the access boundary: only processes that
// can reach the file can call the service.
package service
