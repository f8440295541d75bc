package memstore

import (
	"context"
	"sync"
)

// WriterLock is a process-local domain.WriteLocker. Waiting honours ctx.
type WriterLock struct {
	sem chan struct{}
}

func NewWriterLock() *WriterLock {
	return &WriterLock{sem: make(chan struct{}, 1)}
}

func (l *WriterLock) Lock(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-l.sem }) }, nil
}
