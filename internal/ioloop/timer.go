package ioloop

import (
	"container/heap"
	"time"
)

// timerItem is one entry in the deadline min-heap.
type timerItem struct {
	deadline time.Time
	cb       TimerCallback
	index    int  // maintained by heap.Interface, -1 once removed
	canceled bool
}

func (t *timerItem) unregister() {
	t.canceled = true
}

// timerHeap is a container/heap.Interface ordering timerItems by deadline.
type timerHeap []*timerItem

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	item := x.(*timerItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// timerQueue wraps timerHeap with the operations a Loop actually needs:
// arming a callback for a future deadline, and computing how long to wait
// until the next deadline, skipping canceled entries as it pops them.
type timerQueue struct {
	h timerHeap
}

func newTimerQueue() *timerQueue {
	q := &timerQueue{}
	heap.Init(&q.h)
	return q
}

func (q *timerQueue) add(now time.Time, d time.Duration, cb TimerCallback) *timerItem {
	item := &timerItem{deadline: now.Add(d), cb: cb}
	heap.Push(&q.h, item)
	return item
}

// fire pops every timer whose deadline is <= now and returns the live
// ones' callbacks for the caller to invoke after releasing any lock held
// while popping; canceled entries are discarded without being returned.
// A callback that reenters the loop (e.g. re-arms itself via
// RegisterTimer) must not run while the loop's mutex is still held.
func (q *timerQueue) fire(now time.Time) []TimerCallback {
	var due []TimerCallback
	for q.h.Len() > 0 {
		next := q.h[0]
		if next.deadline.After(now) {
			break
		}
		heap.Pop(&q.h)
		if !next.canceled {
			due = append(due, next.cb)
		}
	}
	return due
}

// nextTimeout reports how long until the earliest live deadline, or ok=false
// if the queue is empty. Canceled entries at the head are discarded first.
func (q *timerQueue) nextTimeout(now time.Time) (d time.Duration, ok bool) {
	for q.h.Len() > 0 && q.h[0].canceled {
		heap.Pop(&q.h)
	}
	if q.h.Len() == 0 {
		return 0, false
	}
	d = q.h[0].deadline.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}
