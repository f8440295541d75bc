package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// graphLockKey names the entity graph writer in pg_advisory_lock.
const graphLockKey int64 = 0x53454c4647524150

// AdvisoryLock serializes graph writers across processes sharing one
// database. Writers in the same process queue on a semaphore first, so a
// waiting goroutine never pins a pooled connection.
type AdvisoryLock struct {
	db  *pgxpool.Pool
	sem chan struct{}
}

func NewAdvisoryLock(db *pgxpool.Pool) *AdvisoryLock {
	return &AdvisoryLock{db: db, sem: make(chan struct{}, 1)}
}

func (l *AdvisoryLock) Lock(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	conn, err := l.db.Acquire(ctx)
	if err != nil {
		<-l.sem
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, graphLockKey); err != nil {
		conn.Release()
		<-l.sem
		return nil, fmt.Errorf("advisory lock: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be done
			if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, graphLockKey); err != nil {
				// a session lock is released when its connection closes
				_ = conn.Conn().Close(context.Background())
			}
			conn.Release()
			<-l.sem
		})
	}, nil
}
