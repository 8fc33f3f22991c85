package analyze

import "loanperf/internal/domain"

// item is the mutable per-position record behind the published
// snapshots. All access goes through the service lock; state and its
// derived result or reason always change together.
type item struct {
	pos       domain.Position
	state     domain.ItemState
	result    *domain.PerformanceResult
	reason    string
	processed bool
}

func (it *item) snapshot() domain.Item {
	snap := domain.Item{
		Position: it.pos,
		State:    it.state,
		Reason:   it.reason,
	}
	if it.result != nil {
		r := *it.result
		snap.Result = &r
	}
	return snap
}

// Items returns a consistent snapshot of all currently published item
// states, in submission order.
func (s *Service) Items() []domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].snapshot())
	}
	return out
}

// Item returns the published snapshot for one position id.
func (s *Service) Item(id string) (domain.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return domain.Item{}, false
	}
	return it.snapshot(), true
}

// Reset returns an item to Queued, clearing its processed marker and
// all derived artifacts, so a collaborator can force reprocessing of a
// terminal item. Unknown ids are ignored.
func (s *Service) Reset(id string) {
	s.mu.Lock()
	it, ok := s.items[id]
	if ok {
		it.state = domain.StateQueued
		it.result = nil
		it.reason = ""
		it.processed = false
	}
	s.mu.Unlock()

	if ok {
		s.publishTotals()
	}
}
