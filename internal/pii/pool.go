package pii

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"incidentrag/internal/domain"
	"incidentrag/internal/httpx"
	"incidentrag/internal/metrics"
)

// Pool bounds concurrent use of a detector that may not be reentrant and
// puts a deadline on every call. Callers wait for a slot.
type Pool struct {
	det     Detector
	sem     *semaphore.Weighted
	timeout time.Duration
}

func NewPool(det Detector, size int, timeout time.Duration) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{det: det, sem: semaphore.NewWeighted(int64(size)), timeout: timeout}
}

type detectResult struct {
	hits []Detection
	err  error
}

func (p *Pool) Detect(ctx context.Context, text string) (hits []Detection, err error) {
	done := metrics.ObserveExternal("pii_detect")
	defer func() { done(err) }()

	ctx, cancel := httpx.CallContext(ctx, p.timeout)
	defer cancel()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, detectorError(err)
	}

	ch := make(chan detectResult, 1)
	go func() {
		defer p.sem.Release(1)
		hits, err := p.det.Detect(ctx, text)
		ch <- detectResult{hits: hits, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, detectorError(r.err)
		}
		return r.hits, nil
	case <-ctx.Done():
		return nil, detectorError(ctx.Err())
	}
}

func detectorError(err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded)
	return domain.NewExternalError("pii_detect", domain.KindPIIDetector, 1, timeout, err)
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
