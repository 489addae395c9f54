package mcpservice

import "sync"

// ChangeSubscriber hands out change subscriptions. The channel receives a
// signal per change burst and is closed when the subscription ends.
type ChangeSubscriber interface {
	Subscribe() (<-chan struct{}, func())
}

// ChangeNotifier fans change signals out to subscribers. The zero value is
// ready to use.
type ChangeNotifier struct {
	mu     sync.Mutex
	subs   map[chan struct{}]struct{}
	closed bool
}

// Notify signals every subscriber without blocking. A subscriber with a
// signal still pending absorbs the new one.
func (cn *ChangeNotifier) Notify() {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	for ch := range cn.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (cn *ChangeNotifier) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		close(ch)
		return ch, func() {}
	}
	if cn.subs == nil {
		cn.subs = make(map[chan struct{}]struct{})
	}
	cn.subs[ch] = struct{}{}

	return ch, func() {
		cn.mu.Lock()
		defer cn.mu.Unlock()
		if _, live := cn.subs[ch]; live {
			delete(cn.subs, ch)
			close(ch)
		}
	}
}

func (cn *ChangeNotifier) Len() int {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	return len(cn.subs)
}

// Close ends every subscription. Later subscriptions are closed at once.
func (cn *ChangeNotifier) Close() {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	cn.closed = true
	for ch := range cn.subs {
		close(ch)
	}
	cn.subs = nil
}
