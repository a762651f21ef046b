package keylock

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// Table is a set of mutexes created on demand and dropped once no caller
// holds or waits for them, so it stays proportional to in-flight keys.
type Table struct {
	m *xsync.MapOf[string, *entry]
}

func New() *Table {
	return &Table{m: xsync.NewMapOf[string, *entry]()}
}

// Lock blocks until key is held or ctx is done. The returned func releases it.
func (t *Table) Lock(ctx context.Context, key string) (func(), error) {
	e, _ := t.m.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
		if !loaded {
			old = &entry{sem: make(chan struct{}, 1)}
		}
		old.refs++
		return old, false
	})

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		t.release(key)
		return nil, ctx.Err()
	}

	return func() {
		<-e.sem
		t.release(key)
	}, nil
}

func (t *Table) release(key string) {
	t.m.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
		if !loaded {
			return nil, true
		}
		old.refs--
		return old, old.refs <= 0
	})
}

func (t *Table) size() int {
	return t.m.Size()
}
