package client

import (
	"context"
	"time"

	"coherence/core"
)

// StatusFetcher is the slice of Client the poller needs.
type StatusFetcher interface {
	Status(ctx context.Context, videoID string) (*core.StatusResponse, error)
}

// Poller drives the processing screen: one sequential status request per
// tick until the job reaches a terminal state. Exactly one terminal callback
// fires per run; a network failure counts as a terminal error. Cancelling
// the context stops the loop and suppresses every further callback.
type Poller struct {
	Fetcher StatusFetcher

	// Interval paces the polls. CompleteGrace delays the completion callback
	// so a full progress bar gets one render before the screen changes.
	Interval      time.Duration
	CompleteGrace time.Duration

	OnProgress func(core.StatusResponse)
	OnComplete func(videoID string)
	OnError    func(*core.APIError)
}

func NewPoller(fetcher StatusFetcher) *Poller {
	return &Poller{
		Fetcher:       fetcher,
		Interval:      3 * time.Second,
		CompleteGrace: 500 * time.Millisecond,
	}
}

// Run polls until terminal or cancelled. The first poll is immediate.
func (p *Poller) Run(ctx context.Context, videoID string) {
	for {
		st, err := p.Fetcher.Status(ctx, videoID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.fireError(ctx, core.AsAPIError(err))
			return
		}

		p.fireProgress(ctx, *st)

		switch st.Status {
		case core.StatusComplete:
			if !sleep(ctx, p.CompleteGrace) {
				return
			}
			if p.OnComplete != nil {
				p.OnComplete(videoID)
			}
			return
		case core.StatusError:
			msg := st.Error
			if msg == "" {
				msg = "Processing failed. Please try again."
			}
			p.fireError(ctx, &core.APIError{Message: msg, Code: core.CodeInternal, Retryable: true})
			return
		}

		if !sleep(ctx, p.Interval) {
			return
		}
	}
}

func (p *Poller) fireProgress(ctx context.Context, st core.StatusResponse) {
	if ctx.Err() == nil && p.OnProgress != nil {
		p.OnProgress(st)
	}
}

func (p *Poller) fireError(ctx context.Context, apiErr *core.APIError) {
	if ctx.Err() == nil && p.OnError != nil {
		p.OnError(apiErr)
	}
}

// sleep waits d or until cancellation; reports whether the wait ran out.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
