// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by every
// timed loop in quickplay: search retries, heartbeats, lobby polls,
// the host countdown, and the start sequence delays.
//
// Production code holds a Clock and never calls time.Now, time.After,
// time.NewTicker, or time.Sleep directly. In production, Real()
// provides standard library behavior. In tests, Fake() provides a
// deterministic clock that only moves when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	orchestrator, _ := quickplay.New(config, quickplay.Dependencies{Clock: c, ...})
//	go orchestrator.BeginQuickPlay(ctx)
//	c.WaitForTimers(1)         // the search loop registered its retry wait
//	c.Advance(6 * time.Second) // the search window elapses
//
// # FakeClock Synchronization
//
// A goroutine calling Sleep, After, or NewTicker on a FakeClock
// registers a pending waiter. WaitForTimers blocks until a given number
// of waiters are pending, which removes the race between a loop
// registering its next wait and the test advancing time.
package clock
