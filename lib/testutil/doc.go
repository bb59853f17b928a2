// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for quickplay packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets. Unix domain sockets have a 108-byte path limit
// (sun_path in sockaddr_un), and t.TempDir() can produce paths longer
// than that on CI runners.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls.
// [Eventually] polls a condition on the wall clock. Together these are
// the only places in the test suite where real wall-clock time is used;
// everything else runs on a fake clock.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation: participant IDs, session names, record names.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
