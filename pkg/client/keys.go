package client

import (
	"slices"
	"sync"
)

// keyQueue serializes work per key in the order tickets were taken.
type keyQueue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

type ticket struct {
	waits   []<-chan struct{}
	release func()
}

// wait blocks until every earlier ticket sharing a key has been released.
func (t ticket) wait() {
	for _, c := range t.waits {
		<-c
	}
}

func newKeyQueue() *keyQueue {
	return &keyQueue{tails: make(map[string]chan struct{})}
}

// enqueue takes the next place in line for every key at once. Tickets are
// taken atomically, so two tickets sharing keys are ordered the same way on
// each of them and never wait on each other.
func (q *keyQueue) enqueue(keys ...string) ticket {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	q.mu.Lock()
	defer q.mu.Unlock()

	mine := make(chan struct{})
	var waits []<-chan struct{}
	for _, key := range keys {
		if prev, ok := q.tails[key]; ok {
			waits = append(waits, prev)
		}
		q.tails[key] = mine
	}

	var once sync.Once
	return ticket{
		waits: waits,
		release: func() {
			once.Do(func() {
				close(mine)
				q.mu.Lock()
				for _, key := range keys {
					if q.tails[key] == mine {
						delete(q.tails, key)
					}
				}
				q.mu.Unlock()
			})
		},
	}
}

func (q *keyQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}
