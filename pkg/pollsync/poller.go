package pollsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Poll interval bounds. Intervals outside them are clamped.
const (
	MinInterval     = time.Second
	MaxInterval     = 5 * time.Second
	DefaultInterval = 2 * time.Second
)

const (
	// DefaultPageSize matches the server's default page limit.
	DefaultPageSize   = 200
	defaultMaxRetries = 4
)

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the poll interval, clamped to [MinInterval, MaxInterval].
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = ClampInterval(d) }
}

// WithPageSize sets how many messages one request asks for.
func WithPageSize(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// WithMaxRetries bounds retries of a retryable failure within one poll or send.
func WithMaxRetries(n uint64) Option {
	return func(p *Poller) { p.maxRetries = n }
}

// WithBackOff replaces the retry schedule. newBackOff is called once per operation.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(p *Poller) { p.newBackOff = newBackOff }
}

// WithLogger sets the logger; the default discards.
func WithLogger(log *zap.Logger) Option {
	return func(p *Poller) { p.log = log }
}

// OnMessages registers a callback for newly merged messages, in sequence order.
func OnMessages(fn func([]Message)) Option {
	return func(p *Poller) { p.onMessages = fn }
}

// ClampInterval bounds d to [MinInterval, MaxInterval]; zero means DefaultInterval.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultInterval
	case d < MinInterval:
		return MinInterval
	case d > MaxInterval:
		return MaxInterval
	}
	return d
}

// Poller keeps a Timeline current by fetching messages after its cursor.
type Poller struct {
	client     Client
	timeline   *Timeline
	interval   time.Duration
	pageSize   int
	maxRetries uint64
	newBackOff func() backoff.BackOff
	onMessages func([]Message)
	log        *zap.Logger

	// pollMu serializes fetches so a send's re-fetch and a tick never
	// request the same page concurrently.
	pollMu sync.Mutex
}

// NewPoller returns a poller for timeline's conversation.
func NewPoller(client Client, timeline *Timeline, opts ...Option) *Poller {
	p := &Poller{
		client:     client,
		timeline:   timeline,
		interval:   DefaultInterval,
		pageSize:   DefaultPageSize,
		maxRetries: defaultMaxRetries,
		newBackOff: defaultBackOff,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	return b
}

// Interval returns the effective poll interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Timeline returns the timeline the poller maintains.
func (p *Poller) Timeline() *Timeline {
	return p.timeline
}

// PollOnce fetches every message after the cursor, following truncated pages,
// and returns what was new.
func (p *Poller) PollOnce(ctx context.Context) ([]Message, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	var added []Message
	for {
		after := p.timeline.Cursor()
		var page *Page
		err := p.retry(ctx, "list", func() error {
			var err error
			page, err = p.client.ListMessagesSince(ctx, p.timeline.ConversationID(), after, p.pageSize)
			return err
		})
		if err != nil {
			return added, err
		}

		if fresh := p.timeline.Merge(page.Messages); len(fresh) > 0 {
			added = append(added, fresh...)
			if p.onMessages != nil {
				p.onMessages(fresh)
			}
		}
		if !page.HasMore || p.timeline.Cursor() <= after {
			return added, nil
		}
	}
}

// Send appends body and immediately re-fetches, so the sent message and
// anything that arrived before it are merged in order. Retries reuse one
// client token, so a send is stored at most once.
func (p *Poller) Send(ctx context.Context, body string) (*Message, error) {
	token := uuid.NewString()
	var sent *Message
	err := p.retry(ctx, "send", func() error {
		var err error
		sent, err = p.client.AppendMessage(ctx, p.timeline.ConversationID(), body, token)
		return err
	})
	if err != nil {
		return nil, err
	}

	if _, err := p.PollOnce(ctx); err != nil {
		// The message is stored; the next tick merges it.
		p.log.Warn("re-fetch after send failed",
			zap.String("conversation_id", p.timeline.ConversationID()),
			zap.Int64("sequence", sent.Sequence),
			zap.Error(err))
	}
	return sent, nil
}

// Run polls until ctx is done. Throttling and outages are logged and the next
// tick tries again. It returns nil on cancellation and the error when the
// server refuses the conversation outright or answers with garbage.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !isRetryable(err) {
				return err
			}
			p.log.Warn("poll failed", zap.String("conversation_id", p.timeline.ConversationID()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Poller) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), p.maxRetries), ctx)
	return backoff.RetryNotify(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		p.log.Debug("retrying", zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
	})
}

// isRetryable treats retryable API errors and transport failures as transient.
// Callers check their own context for cancellation.
func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return !errors.Is(err, ErrMalformedResponse)
}
