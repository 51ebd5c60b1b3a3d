package solver

import (
	"sort"

	"github.com/auriol/strikeplan/internal/models"
)

type bufferEntry struct {
	assignment models.Assignment
	eval       Evaluation
	value      float64
}

// SolutionBuffer keeps the best distinct assignments seen over a run,
// ordered best first. Distinctness is by the assignment's substitution set,
// so the same plan reached twice counts once.
type SolutionBuffer struct {
	capacity int
	entries  []bufferEntry
	seen     map[string]bool
}

// NewSolutionBuffer builds a buffer holding up to capacity solutions.
func NewSolutionBuffer(capacity int) *SolutionBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &SolutionBuffer{capacity: capacity, seen: make(map[string]bool)}
}

// Offer inserts the assignment if it is new and good enough. Ties keep the
// earlier arrival ahead.
func (b *SolutionBuffer) Offer(assignment models.Assignment, ev Evaluation, value float64) bool {
	fp := assignment.Fingerprint()
	if b.seen[fp] {
		return false
	}
	if len(b.entries) >= b.capacity {
		worst := b.entries[len(b.entries)-1]
		if value >= worst.value {
			return false
		}
		delete(b.seen, worst.assignment.Fingerprint())
		b.entries = b.entries[:len(b.entries)-1]
	}
	at := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].value > value
	})
	b.entries = append(b.entries, bufferEntry{})
	copy(b.entries[at+1:], b.entries[at:])
	b.entries[at] = bufferEntry{assignment: assignment, eval: ev, value: value}
	b.seen[fp] = true
	return true
}

// BestValue returns the best objective value held, if any.
func (b *SolutionBuffer) BestValue() (float64, bool) {
	if len(b.entries) == 0 {
		return 0, false
	}
	return b.entries[0].value, true
}

// Len returns the number of buffered solutions.
func (b *SolutionBuffer) Len() int {
	return len(b.entries)
}

// Solutions drains the buffer into the result shape, best first, dropping
// any duplicate substitution sets as a final guard.
func (b *SolutionBuffer) Solutions() []Solution {
	out := make([]Solution, 0, len(b.entries))
	seen := make(map[string]bool, len(b.entries))
	for _, e := range b.entries {
		fp := e.assignment.Fingerprint()
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, Solution{
			Assignment: e.assignment,
			Price:      e.eval.Price,
			Loss:       e.eval.Loss,
			Usage:      e.eval.Usage,
		})
	}
	return out
}
