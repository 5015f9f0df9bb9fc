// Package observable provides latest-value state cells and a serial
// dispatcher on which all state publication for one owner happens.
package observable

import "sync"

// Dispatcher runs posted functions one at a time in submission order on a
// single goroutine. Posting never blocks, so a running function may post more work.
type Dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

// Post enqueues fn. It reports false once the dispatcher is closed.
func (d *Dispatcher) Post(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// Close stops accepting work, drains what is queued and waits for it.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}
