package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventWaitUnblocksOnBroadcast(t *testing.T) {
	e := NewEvent()
	woke := make(chan struct{})

	go func() {
		e.Wait()
		close(woke)
	}()

	time.Sleep(10 * time.Millisecond)
	e.Broadcast()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake up after Broadcast")
	}
}

func TestKeyEqual(t *testing.T) {
	require.True(t, Equal(Int64Key(5), Int64Key(5)))
	require.False(t, Equal(Int64Key(5), Int64Key(6)))
}
