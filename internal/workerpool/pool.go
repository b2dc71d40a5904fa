// Package workerpool bounds how many CPU-heavy jobs (PDF parsing, OCR,
// rasterization) run at once across all requests.
package workerpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

type Pool struct {
	sem  *semaphore.Weighted
	size int
}

func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

func (p *Pool) Size() int {
	return p.size
}

// Submit waits for a free slot and runs fn on the calling goroutine. Only the
// wait honours ctx; once started, fn runs to completion. A panic in fn is
// returned as an error.
func Submit[T any](ctx context.Context, p *Pool, fn func() (T, error)) (result T, err error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		var zero T
		return zero, fmt.Errorf("worker pool: %w", err)
	}
	defer p.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = fmt.Errorf("worker pool: job panicked: %v", r)
		}
	}()

	return fn()
}
