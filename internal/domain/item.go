package domain

// ItemState tracks one Position through the fetch pipeline. Exactly one
// state holds per Position id at any time.
type ItemState int

const (
	StateQueued ItemState = iota
	StateLoading
	StateAwaitingRetry
	StateResult
	StateFailed
)

func (s ItemState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateLoading:
		return "loading"
	case StateAwaitingRetry:
		return "awaiting_retry"
	case StateResult:
		return "result"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the item's pipeline run.
func (s ItemState) Terminal() bool {
	return s == StateResult || s == StateFailed
}

// Item is a published snapshot of one Position's pipeline state. State
// and its derived result or reason are always published together.
type Item struct {
	Position Position
	State    ItemState
	Result   *PerformanceResult // set only in StateResult
	Reason   string             // set only in StateFailed
}
