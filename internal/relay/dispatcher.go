package relay

import (
	"log"
	"sync"
	"time"

	"switch-relay/internal/metrics"
)

// Dispatcher converts (user, channel) pairs into relocation calls, gating
// each user behind a cooldown window. The ledger is advisory only and is
// never persisted.
type Dispatcher struct {
	sender   Sender
	clock    Clock
	cooldown time.Duration

	mu       sync.Mutex
	lastMove map[string]time.Time
}

// NewDispatcher creates a dispatcher over the given sender.
func NewDispatcher(sender Sender, clock Clock, cooldown time.Duration) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		clock:    clock,
		cooldown: cooldown,
		lastMove: make(map[string]time.Time),
	}
}

// Move relocates one user to one channel. An empty channel means the
// device never resolved a destination; that is a skip, not an error.
// The ledger is updated only on a confirmed move, so a rate-limited or
// failed attempt stays eligible for retry on the next natural event.
func (d *Dispatcher) Move(userID, channelID string) Outcome {
	out := d.move(userID, channelID)
	metrics.MoveRecorded(out.Kind.String())
	return out
}

func (d *Dispatcher) move(userID, channelID string) Outcome {
	if channelID == "" {
		log.Printf("[WARN] No channel configured for moving user %s, skipping", userID)
		return Outcome{Kind: Skipped, UserID: userID, Reason: SkipUnconfigured}
	}

	now := d.clock.Now()

	d.mu.Lock()
	last, seen := d.lastMove[userID]
	d.mu.Unlock()

	if d.cooldown > 0 && seen && now.Sub(last) < d.cooldown {
		log.Printf("[INFO] Move of user %s skipped due to cooldown", userID)
		return Outcome{Kind: Skipped, UserID: userID, ChannelID: channelID, Reason: SkipCooldown}
	}

	res := d.sender.Send(userID, channelID)
	switch res.Status {
	case SendSuccess:
		d.mu.Lock()
		d.lastMove[userID] = now
		d.mu.Unlock()
		log.Printf("[INFO] Moved user %s to channel %s", userID, channelID)
		return Outcome{Kind: Moved, UserID: userID, ChannelID: channelID, Reason: res.Detail}
	case SendRateLimited:
		log.Printf("[WARN] Rate limited moving user %s to channel %s", userID, channelID)
		return Outcome{Kind: RateLimited, UserID: userID, ChannelID: channelID}
	case SendNotConnected:
		log.Printf("[INFO] User %s has no active voice session, skipping", userID)
		return Outcome{Kind: Skipped, UserID: userID, ChannelID: channelID, Reason: SkipNotConnected}
	default:
		log.Printf("[ERR] Move of user %s to channel %s failed: %d %s", userID, channelID, res.StatusCode, res.Detail)
		return Outcome{Kind: APIError, UserID: userID, ChannelID: channelID, Status: res.StatusCode, Reason: res.Detail}
	}
}

// ClearUsers drops the cooldown entries for the given users. Called on
// device reset so the device's users move freely afterwards.
func (d *Dispatcher) ClearUsers(userIDs []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range userIDs {
		delete(d.lastMove, id)
	}
}
