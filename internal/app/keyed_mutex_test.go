package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("cart:user-1")
			defer km.Unlock("cart:user-1")
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestKeyedMutex_IndependentKeysDoNotBlock(t *testing.T) {
	km := newKeyedMutex()

	km.Lock("cart:user-1")
	defer km.Unlock("cart:user-1")

	done := make(chan struct{})
	go func() {
		km.Lock("cart:user-2")
		km.Unlock("cart:user-2")
		close(done)
	}()

	<-done // must not deadlock while user-1 is held
}

func TestKeyedMutex_DropsEntryWhenReleased(t *testing.T) {
	km := newKeyedMutex()

	km.Lock("tx:1")
	km.Unlock("tx:1")

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}
