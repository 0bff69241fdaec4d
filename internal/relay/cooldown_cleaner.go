package relay

import (
	"context"
	"log"
	"time"
)

// RunCooldownCleaner runs a background goroutine that prunes expired
// cooldown ledger entries every minute until ctx is done. Call from main
// or app lifecycle.
func RunCooldownCleaner(ctx context.Context, d *Dispatcher) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.PruneExpired(); n > 0 {
				log.Printf("[INFO] Pruned %d expired cooldown entries", n)
			}
		}
	}
}

// PruneExpired removes ledger entries whose cooldown window has passed
// and reports how many were dropped. Entries past the window carry no
// information; pruning keeps the ledger bounded by active users.
func (d *Dispatcher) PruneExpired() int {
	if d.cooldown <= 0 {
		return 0
	}

	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()
	pruned := 0
	for id, last := range d.lastMove {
		if now.Sub(last) >= d.cooldown {
			delete(d.lastMove, id)
			pruned++
		}
	}
	return pruned
}
