package fetcher

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pipeline runs distfile fetches one step ahead of the build executor that
// consumes them: while a package builds, the next package's distfile is
// already downloading, so the build loop rarely blocks on network I/O.
type Pipeline struct {
	fetcher *Fetcher
	ctx     context.Context
	g       *errgroup.Group
	pending chan error
}

// NewPipeline returns a Pipeline bound to ctx; a canceled ctx aborts any
// fetch in flight.
func NewPipeline(ctx context.Context, f *Fetcher) *Pipeline {
	g, gctx := errgroup.WithContext(ctx)
	return &Pipeline{fetcher: f, ctx: gctx, g: g}
}

// Start begins fetching spec in the background. It must be followed by a
// matching Wait before the next Start, since the pipeline only ever holds
// one fetch ahead.
func (p *Pipeline) Start(spec Spec) {
	done := make(chan error, 1)
	p.pending = done
	p.g.Go(func() error {
		err := p.fetcher.Fetch(p.ctx, spec)
		done <- err
		return err
	})
}

// Wait blocks for the most recent Start to finish and returns its error.
// Calling Wait without a prior Start returns nil.
func (p *Pipeline) Wait() error {
	if p.pending == nil {
		return nil
	}
	err := <-p.pending
	p.pending = nil
	return err
}

// Close waits for any in-flight fetch to finish and returns the first error
// encountered across the pipeline's lifetime, if any.
func (p *Pipeline) Close() error {
	return p.g.Wait()
}
