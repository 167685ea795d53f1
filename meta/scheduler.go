package meta

// Scheduler selects the next task to run from the queued list: the
// numerically highest priority wins, ties broken by first-seen order.
// The scan is O(n) per pick, which is fine for operator-driven volumes.
type Scheduler struct{}

// Next returns the index of the task to run, or false when the queue is
// empty. The scan only replaces the candidate on a strictly greater
// priority, which keeps the tie-break stable.
func (Scheduler) Next(queued []Task) (int, bool) {
	if len(queued) == 0 {
		return 0, false
	}
	best := 0
	for i := 1; i < len(queued); i++ {
		if queued[i].Priority > queued[best].Priority {
			best = i
		}
	}
	return best, true
}
