package media

import (
	"context"
	"sync"
)

// Tracker indexes the live media bridges so shutdown can cancel them and
// wait for their teardown. A nil Tracker is inert.
type Tracker struct {
	mu      sync.Mutex
	bridges map[string]*trackedBridge
	wg      sync.WaitGroup
}

type trackedBridge struct {
	cancel func()
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{bridges: make(map[string]*trackedBridge)}
}

// Register tracks one bridge under its session id. A session carries at
// most one live bridge: registering the same session again supersedes the
// old entry and releases it. The returned func unregisters; calling it
// more than once is safe.
func (t *Tracker) Register(sessionID string, cancel func()) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedBridge{cancel: cancel}

	t.mu.Lock()
	if t.bridges == nil {
		t.bridges = make(map[string]*trackedBridge)
	}
	old := t.bridges[sessionID]
	t.bridges[sessionID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(sessionID, old)
	}

	return func() { t.unregister(sessionID, entry) }
}

func (t *Tracker) unregister(sessionID string, entry *trackedBridge) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.bridges != nil && t.bridges[sessionID] == entry {
			delete(t.bridges, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bridges)
}

// CancelAll signals every live bridge to close.
func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.bridges {
		if entry == nil || entry.cancel == nil {
			continue
		}
		cancels = append(cancels, entry.cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered bridge has unregistered, or the
// context expires. Reports whether the drain completed.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
