package relay

import (
	"testing"
	"time"
)

func newTestDispatcher(cooldown time.Duration) (*Dispatcher, *fakeSender, *fakeClock) {
	clock := newFakeClock(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	sender := newFakeSender()
	return NewDispatcher(sender, clock, cooldown), sender, clock
}

func TestMoveSuccessUpdatesLedger(t *testing.T) {
	d, sender, clock := newTestDispatcher(5 * time.Second)

	out := d.Move("u1", "c1")
	if out.Kind != Moved {
		t.Fatalf("expected moved, got %s", out.Kind)
	}

	// Inside the window: skipped without calling the sender.
	clock.Advance(3 * time.Second)
	out = d.Move("u1", "c1")
	if out.Kind != Skipped || out.Reason != SkipCooldown {
		t.Fatalf("expected cooldown skip, got %+v", out)
	}
	if sender.callCount() != 1 {
		t.Fatalf("cooldown skip must not call the sender, got %d calls", sender.callCount())
	}
}

func TestCooldownSkipDoesNotResetWindow(t *testing.T) {
	d, _, clock := newTestDispatcher(5 * time.Second)

	d.Move("u1", "c1")
	clock.Advance(4 * time.Second)
	d.Move("u1", "c1") // skipped
	clock.Advance(2 * time.Second)

	// 6s after the successful move: the skip at 4s must not have pushed
	// the window out.
	out := d.Move("u1", "c1")
	if out.Kind != Moved {
		t.Fatalf("expected move after original window, got %+v", out)
	}
}

func TestCooldownTracksUsersIndependently(t *testing.T) {
	d, _, clock := newTestDispatcher(5 * time.Second)

	d.Move("u1", "c1")
	clock.Advance(1 * time.Second)

	out := d.Move("u2", "c1")
	if out.Kind != Moved {
		t.Fatalf("u2 must not share u1's cooldown, got %+v", out)
	}
}

func TestZeroCooldownDisablesGate(t *testing.T) {
	d, sender, _ := newTestDispatcher(0)

	d.Move("u1", "c1")
	out := d.Move("u1", "c1")
	if out.Kind != Moved {
		t.Fatalf("expected move with cooldown disabled, got %+v", out)
	}
	if sender.callCount() != 2 {
		t.Fatalf("expected 2 sender calls, got %d", sender.callCount())
	}
}

func TestRateLimitedLeavesLedgerUntouched(t *testing.T) {
	d, sender, clock := newTestDispatcher(5 * time.Second)
	sender.results["u1"] = SendResult{Status: SendRateLimited, StatusCode: 429}

	out := d.Move("u1", "c1")
	if out.Kind != RateLimited {
		t.Fatalf("expected rate limited, got %+v", out)
	}

	// The failed attempt did not start a cooldown window: once the remote
	// recovers, the next event retries normally.
	delete(sender.results, "u1")
	clock.Advance(time.Second)
	out = d.Move("u1", "c1")
	if out.Kind != Moved {
		t.Fatalf("expected retry to move, got %+v", out)
	}
}

func TestNotConnectedIsSkip(t *testing.T) {
	d, sender, _ := newTestDispatcher(5 * time.Second)
	sender.results["u1"] = SendResult{Status: SendNotConnected}

	out := d.Move("u1", "c1")
	if out.Kind != Skipped || out.Reason != SkipNotConnected {
		t.Fatalf("expected not-connected skip, got %+v", out)
	}
}

func TestAPIErrorCarriesStatusAndBody(t *testing.T) {
	d, sender, _ := newTestDispatcher(5 * time.Second)
	sender.results["u1"] = SendResult{Status: SendError, StatusCode: 403, Detail: "Missing Permissions"}

	out := d.Move("u1", "c1")
	if out.Kind != APIError || out.Status != 403 || out.Reason != "Missing Permissions" {
		t.Fatalf("expected API error with status and body, got %+v", out)
	}

	// Errors don't start a cooldown window either.
	delete(sender.results, "u1")
	out = d.Move("u1", "c1")
	if out.Kind != Moved {
		t.Fatalf("expected retry after error, got %+v", out)
	}
}

func TestUnconfiguredChannelSkipsWithoutSending(t *testing.T) {
	d, sender, _ := newTestDispatcher(5 * time.Second)

	out := d.Move("u1", "")
	if out.Kind != Skipped || out.Reason != SkipUnconfigured {
		t.Fatalf("expected unconfigured skip, got %+v", out)
	}
	if sender.callCount() != 0 {
		t.Error("unconfigured move must not call the sender")
	}
}

func TestClearUsersDropsCooldowns(t *testing.T) {
	d, _, _ := newTestDispatcher(5 * time.Second)

	d.Move("u1", "c1")
	d.Move("u2", "c1")
	d.ClearUsers([]string{"u1"})

	if out := d.Move("u1", "c1"); out.Kind != Moved {
		t.Errorf("cleared user should move immediately, got %+v", out)
	}
	if out := d.Move("u2", "c1"); out.Kind != Skipped {
		t.Errorf("uncleared user should still be gated, got %+v", out)
	}
}

func TestPruneExpiredDropsOnlyStaleEntries(t *testing.T) {
	d, _, clock := newTestDispatcher(5 * time.Second)

	d.Move("u1", "c1")
	clock.Advance(3 * time.Second)
	d.Move("u2", "c1")
	clock.Advance(3 * time.Second)

	// u1 is 6s old, u2 is 3s old.
	if n := d.PruneExpired(); n != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", n)
	}

	out := d.Move("u1", "c1")
	if out.Kind != Moved {
		t.Errorf("pruned user must move freely, got %+v", out)
	}
	out = d.Move("u2", "c1")
	if out.Kind != Skipped || out.Reason != SkipCooldown {
		t.Errorf("u2 still inside its window, got %+v", out)
	}
}

func TestPruneExpiredNoopWithoutCooldown(t *testing.T) {
	d, _, _ := newTestDispatcher(0)

	d.Move("u1", "c1")
	if n := d.PruneExpired(); n != 0 {
		t.Errorf("zero cooldown must never prune, got %d", n)
	}
}
