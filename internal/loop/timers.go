package loop

import (
	"time"

	"github.com/google/btree"
)

const timerTreeDegree = 8

type timerEntry struct {
	deadline time.Time
	seq      uint64
	task     task
}

func (a *timerEntry) Less(b *timerEntry) bool {
	if !a.deadline.Equal(b.deadline) {
		return a.deadline.Before(b.deadline)
	}
	return a.seq < b.seq
}

// timerQueue orders tasks by (deadline, insertion sequence).
type timerQueue struct {
	tree *btree.BTreeG[*timerEntry]
	seq  uint64
}

func newTimerQueue() *timerQueue {
	return &timerQueue{tree: btree.NewG(timerTreeDegree, (*timerEntry).Less)}
}

func (q *timerQueue) push(deadline time.Time, t task) {
	q.seq++
	q.tree.ReplaceOrInsert(&timerEntry{deadline: deadline, seq: q.seq, task: t})
}

// popDue removes and returns every task whose deadline is not after now.
func (q *timerQueue) popDue(now time.Time) []task {
	var due []task
	for {
		e, ok := q.tree.Min()
		if !ok || e.deadline.After(now) {
			return due
		}
		q.tree.DeleteMin()
		due = append(due, e.task)
	}
}

// popFirstDue removes and returns the earliest task if it is due.
func (q *timerQueue) popFirstDue(now time.Time) (*timerEntry, bool) {
	e, ok := q.tree.Min()
	if !ok || e.deadline.After(now) {
		return nil, false
	}
	q.tree.DeleteMin()
	return e, true
}

func (q *timerQueue) next() (time.Time, bool) {
	e, ok := q.tree.Min()
	if !ok {
		return time.Time{}, false
	}
	return e.deadline, true
}

func (q *timerQueue) len() int {
	return q.tree.Len()
}
