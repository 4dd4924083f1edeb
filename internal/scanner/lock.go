package scanner

import "sync"

// BroadcastLock is a reference counted hold on the host's ability to send
// and receive broadcast datagrams. The first Acquire calls onAcquire and the
// last release calls onRelease, so concurrent scans share one hold.
type BroadcastLock struct {
	mu        sync.Mutex
	holders   int
	onAcquire func()
	onRelease func()
}

// NewBroadcastLock creates a lock. Either hook may be nil.
func NewBroadcastLock(onAcquire, onRelease func()) *BroadcastLock {
	return &BroadcastLock{onAcquire: onAcquire, onRelease: onRelease}
}

// Acquire takes a hold and returns the function releasing it. Calling the
// release function more than once has no further effect.
func (l *BroadcastLock) Acquire() (release func()) {
	l.mu.Lock()
	l.holders++
	if l.holders == 1 && l.onAcquire != nil {
		l.onAcquire()
	}
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.holders--
			if l.holders == 0 && l.onRelease != nil {
				l.onRelease()
			}
		})
	}
}

// Held reports how many holds are outstanding.
func (l *BroadcastLock) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holders
}
