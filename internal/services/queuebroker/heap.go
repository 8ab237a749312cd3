package queuebroker

import (
	"container/heap"
	"time"

	"github.com/careerforge/backend/internal/models"
)

// entry is one in-memory delivery candidate for a channel's priority queue.
type entry struct {
	externalID  string
	payload     any
	priority    int
	attempt     int
	maxAttempts int
	readyAt     time.Time
	index       int // insertion sequence number, used as the FIFO tiebreaker
}

// entryHeap puts due entries (readyAt not after now) before not-yet-due ones,
// so nothing jumps the delay queue. Due entries order by priority weight
// descending, then FIFO by index; not-yet-due entries order by readyAt.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	iReady, jReady := h[i].readyAt, h[j].readyAt
	now := time.Now()
	iDue, jDue := !iReady.After(now), !jReady.After(now)
	if iDue != jDue {
		return iDue // due entries sort before not-yet-due entries
	}
	if iDue && jDue {
		if h[i].priority != h[j].priority {
			return h[i].priority > h[j].priority
		}
		return h[i].index < h[j].index
	}
	return iReady.Before(jReady)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(*entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*entryHeap)(nil)

func jobPriorityWeight(job *models.Job) int {
	return models.PriorityWeight(job.Priority)
}
