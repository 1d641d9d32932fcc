package app

import (
	"sync"

	"chronos-cypher-service/internal/domain"
)

// LeaderboardHub fans out leaderboard snapshots to subscribers. Slow
// consumers have their stale snapshot replaced rather than blocking the
// broadcaster.
type LeaderboardHub struct {
	mu          sync.Mutex
	subscribers map[chan domain.Leaderboard]struct{}
}

func NewLeaderboardHub() *LeaderboardHub {
	return &LeaderboardHub{subscribers: make(map[chan domain.Leaderboard]struct{})}
}

// Subscribe returns a channel of leaderboard updates, primed with the given
// snapshot. The caller must invoke the returned cancel function to avoid leaks.
func (h *LeaderboardHub) Subscribe(initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	ch <- initial

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast delivers the snapshot to every subscriber.
func (h *LeaderboardHub) Broadcast(lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- lb:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}
