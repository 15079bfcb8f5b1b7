package pipeline

import (
	"sync"
)

// Dedup guards the orchestrator against repeated feedback submissions:
// browser retries, double-clicks, and polling races must not re-run the
// approval or revision pipeline. The key is (session_id, feedback_type),
// not content-hashed, so two different revise requests in flight are
// deliberately collapsed; revise keys are released once a revision
// lands so distinct follow-up revisions remain possible.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDedup creates an empty deduplicator.
func NewDedup() *Dedup {
	return &Dedup{seen: make(map[string]struct{})}
}

func key(sessionID, feedbackType string) string {
	return sessionID + ":" + feedbackType
}

// ShouldProcess reports whether this (session, feedback type) pair has
// not been processed yet, marking it as seen on the first true return.
func (d *Dedup) ShouldProcess(sessionID, feedbackType string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := key(sessionID, feedbackType)
	if _, dup := d.seen[k]; dup {
		return false
	}
	d.seen[k] = struct{}{}
	return true
}

// Release forgets a key so the same feedback type can be processed
// again, used after a completed revision and after a failed approval.
func (d *Dedup) Release(sessionID, feedbackType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key(sessionID, feedbackType))
}
