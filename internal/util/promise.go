// Package util holds small concurrency helpers used by the
// constituent package.
package util

// Promise runs f in its own goroutine and makes the result available
// via Get, which blocks until f completes. The Constituent's election
// round uses one Promise per peer requestVote call so it can fire all
// RPCs concurrently and then block on a single randomized sleep window
// before collecting whatever answered in time.
type Promise struct {
	result interface{}
	err    error

	done chan struct{}
}

func NewPromise(f func() (interface{}, error)) *Promise {

	done := make(chan struct{})

	promise := &Promise{done: done}

	go func() {
		defer close(done)

		result, err := f()
		promise.result = result
		promise.err = err
	}()

	return promise
}

func (p *Promise) Get() (interface{}, error) {
	<-p.done
	return p.result, p.err
}

// TryGet returns immediately with ok=false if the promise has not yet
// completed, instead of blocking.
func (p *Promise) TryGet() (result interface{}, err error, ok bool) {
	select {
	case <-p.done:
		return p.result, p.err, true
	default:
		return nil, nil, false
	}
}
