package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ready(t ticket) bool {
	done := make(chan struct{})
	go func() {
		t.wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(20 * time.Millisecond):
		return false
	}
}

func TestKeyQueue_MultiKey(t *testing.T) {
	q := newKeyQueue()

	single := q.enqueue("b")
	cascade := q.enqueue("a", "b", "c")
	other := q.enqueue("c")
	free := q.enqueue("z")

	assert.True(t, ready(single))
	assert.False(t, ready(cascade), "waits for b")
	assert.True(t, ready(free))

	single.release()
	assert.True(t, ready(cascade))
	assert.False(t, ready(other), "queued behind the cascade on c")

	cascade.release()
	assert.True(t, ready(other))

	other.release()
	free.release()
	assert.Equal(t, 0, q.len())
}

func TestKeyQueue_DuplicateKeys(t *testing.T) {
	q := newKeyQueue()
	tk := q.enqueue("a", "a")
	assert.True(t, ready(tk))
	tk.release()
	tk.release()
	assert.Equal(t, 0, q.len())
}
