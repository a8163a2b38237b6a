package locker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedSerialisesPerKey(t *testing.T) {
	l := New[string]()

	var wg sync.WaitGroup
	var a, b int
	counters := map[string]*int{"a": &a, "b": &b}
	for i := 0; i < 100; i++ {
		for _, k := range []string{"a", "b"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := l.Lock(k)
				defer unlock()
				*counters[k]++
			}()
		}
	}
	wg.Wait()

	assert.Equal(t, 100, a)
	assert.Equal(t, 100, b)
	assert.Zero(t, l.Len(), "idle keys are released")
}

func TestKeyedIndependentKeys(t *testing.T) {
	l := New[int]()

	unlockA := l.Lock(1)
	done := make(chan struct{})
	go func() {
		unlock := l.Lock(2)
		unlock()
		close(done)
	}()
	<-done
	assert.Equal(t, 1, l.Len())
	unlockA()
	assert.Zero(t, l.Len())
}
