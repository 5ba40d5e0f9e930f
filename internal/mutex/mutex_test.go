package mutex

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireSerializesSameName(t *testing.T) {
	m := NewMap()

	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := m.Acquire("db")
			defer release()

			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxActive)
				if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
}

func TestAcquireDifferentNamesDoNotContend(t *testing.T) {
	m := NewMap()

	releaseA := m.Acquire("a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB := m.Acquire("b")
		defer releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring a different name should not block")
	}
}

func TestTryAcquire(t *testing.T) {
	m := NewMap()

	release, ok := m.TryAcquire("x")
	assert.True(t, ok)

	_, ok2 := m.TryAcquire("x")
	assert.False(t, ok2)

	release()

	release2, ok3 := m.TryAcquire("x")
	assert.True(t, ok3)
	release2()
}
