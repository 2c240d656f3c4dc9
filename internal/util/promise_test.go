package util

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPromiseGetBlocksUntilDone(t *testing.T) {
	p := NewPromise(func() (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return 42, nil
	})

	result, err := p.Get()
	assert.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestPromisePropagatesError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPromise(func() (interface{}, error) {
		return nil, boom
	})

	_, err := p.Get()
	assert.Equal(t, boom, err)
}

func TestPromiseTryGetBeforeDone(t *testing.T) {
	release := make(chan struct{})
	p := NewPromise(func() (interface{}, error) {
		<-release
		return "done", nil
	})

	_, _, ok := p.TryGet()
	assert.False(t, ok)

	close(release)
	result, err := p.Get()
	assert.NoError(t, err)
	assert.Equal(t, "done", result)
}
