// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockAfterFiresOnAdvance(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(3 * time.Second)

	select {
	case <-channel:
		t.Fatal("After fired before Advance")
	default:
	}

	clock.Advance(3 * time.Second)

	select {
	case <-channel:
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeClockAfterNonPositiveFiresImmediately(t *testing.T) {
	clock := Fake(epoch)
	for _, duration := range []time.Duration{0, -time.Second} {
		select {
		case <-clock.After(duration):
		default:
			t.Fatalf("After(%v) should fire immediately", duration)
		}
	}
	if pending := clock.PendingCount(); pending != 0 {
		t.Errorf("PendingCount() = %d, want 0", pending)
	}
}

func TestFakeClockAfterPartialAdvance(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(750 * time.Millisecond)

	clock.Advance(500 * time.Millisecond)
	select {
	case <-channel:
		t.Fatal("After fired before deadline")
	default:
	}

	clock.Advance(250 * time.Millisecond)
	select {
	case <-channel:
	default:
		t.Fatal("After did not fire at exact deadline")
	}
}

func TestFakeClockTicker(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(15 * time.Second)
	defer ticker.Stop()

	select {
	case <-ticker.C:
		t.Fatal("ticker fired before first interval")
	default:
	}

	for tick := 1; tick <= 2; tick++ {
		clock.Advance(15 * time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("ticker did not fire on interval %d", tick)
		}
	}
}

func TestFakeClockTickerStopAndReset(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)

	ticker.Stop()
	clock.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("ticker fired after Stop()")
	default:
	}

	ticker.Reset(2 * time.Second)
	if pending := clock.PendingCount(); pending != 1 {
		t.Fatalf("PendingCount() after Reset = %d, want 1", pending)
	}
	clock.Advance(2 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after Reset")
	}
}

func TestFakeClockTickerPanicsOnNonPositive(t *testing.T) {
	clock := Fake(epoch)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("NewTicker(0) should panic")
		}
	}()
	clock.NewTicker(0)
}

func TestFakeClockSleepWithWaitForTimers(t *testing.T) {
	clock := Fake(epoch)
	done := make(chan struct{})
	go func() {
		clock.Sleep(2 * time.Second)
		close(done)
	}()

	clock.WaitForTimers(1)
	clock.Advance(2 * time.Second)
	<-done
}

func TestRemainingAndUnixMilli(t *testing.T) {
	clock := Fake(epoch)
	deadline := epoch.Add(30 * time.Second)

	if got := Remaining(clock, deadline); got != 30*time.Second {
		t.Errorf("Remaining() = %v, want 30s", got)
	}
	clock.Advance(45 * time.Second)
	if got := Remaining(clock, deadline); got != 0 {
		t.Errorf("Remaining() past deadline = %v, want 0", got)
	}
	if got, want := UnixMilli(clock), epoch.Add(45*time.Second).UnixMilli(); got != want {
		t.Errorf("UnixMilli() = %d, want %d", got, want)
	}
}
