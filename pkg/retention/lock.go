package retention

import (
	"context"
	"sync"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
)

// Locker guards a data class against concurrent purges. TryLock never
// waits: ok is false when another purge holds the class.
type Locker interface {
	TryLock(ctx context.Context, class reading.DataClass) (release func(), ok bool, err error)
}

// LocalLocker is an in-process advisory lock per class. The internal mutex
// only guards the held set; it is never held while a purge runs.
type LocalLocker struct {
	mu   sync.Mutex
	held map[reading.DataClass]bool
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[reading.DataClass]bool)}
}

// TryLock marks class as held if it is free
func (l *LocalLocker) TryLock(_ context.Context, class reading.DataClass) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[class] {
		return nil, false, nil
	}
	l.held[class] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, class)
			l.mu.Unlock()
		})
	}, true, nil
}

// Held reports whether class is currently locked
func (l *LocalLocker) Held(class reading.DataClass) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[class]
}

// chain acquires every locker in order and releases in reverse
type chain []Locker

// Chain combines lockers; the class is locked only if all of them grant it.
func Chain(lockers ...Locker) Locker {
	return chain(lockers)
}

func (c chain) TryLock(ctx context.Context, class reading.DataClass) (func(), bool, error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, l := range c {
		release, ok, err := l.TryLock(ctx, class)
		if err != nil || !ok {
			releaseAll()
			return nil, ok, err
		}
		releases = append(releases, release)
	}
	return releaseAll, true, nil
}
