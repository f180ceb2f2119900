// Package freshness decides whether the stored balance reading is current
// and, when it is not, coaxes the carrier into producing a new one by SMS.
package freshness

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"gigawatch/internal/carrier"
	"gigawatch/internal/metrics"
	"gigawatch/internal/mikrotik"
	"gigawatch/internal/storage"
)

// Gateway is the router management surface the engine consumes.
type Gateway interface {
	ListInbox(ctx context.Context) ([]mikrotik.Sms, error)
	SendSMS(ctx context.Context, to, body string) error
}

// LatestStore is the single store read the engine performs.
type LatestStore interface {
	LatestDataStatus(ctx context.Context) (*storage.Observation, error)
}

// Options tune the engine's staleness and waiting behaviour.
type Options struct {
	// MaxAge is the age beyond which the latest observation is stale.
	MaxAge time.Duration
	// Timeout bounds the wait for a reply after the keyword SMS is sent.
	Timeout time.Duration
	// Poll is the delay between inbox re-enumerations while waiting.
	Poll time.Duration
	// Shortcode and Keyword form the carrier balance query.
	Shortcode string
	Keyword   string
}

// Kind tags the mutually exclusive engine outcomes.
type Kind int

const (
	// KindFresh carries a qualifying observation.
	KindFresh Kind = iota
	// KindLoading means no observation exists and the engine chose not to
	// wait this call.
	KindLoading
	// KindError means a refresh was attempted and failed.
	KindError
)

// Result is the tagged outcome of one engine invocation.
type Result struct {
	Kind   Kind
	Status *carrier.DataStatus
	Stale  bool
	Err    error
}

// ErrReplyTimeout is the Err of a KindError result when the keyword SMS was
// sent but no qualifying reply arrived within Timeout.
var ErrReplyTimeout = errors.New("timeout waiting for new SMS")

// Engine produces a fresh observation or a precise reason why not. It is not
// safe for concurrent invocation; the scheduler serialises calls, since
// overlapping runs would only duplicate keyword SMSes.
type Engine struct {
	gateway Gateway
	store   LatestStore
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

// New constructs an Engine.
func New(gateway Gateway, store LatestStore, opts Options, logger zerolog.Logger) *Engine {
	return &Engine{
		gateway: gateway,
		store:   store,
		opts:    opts,
		logger:  logger.With().Str("component", "freshness").Logger(),
		now:     time.Now,
	}
}

// Fetch runs the state machine once. The returned error covers only
// unexpected infrastructure failures (store read, inbox enumeration);
// everything the protocol anticipates is expressed through Result.
func (e *Engine) Fetch(ctx context.Context, force bool) (Result, error) {
	// Staleness during the whole invocation is judged against this instant,
	// not a moving "now": a reply that arrives after a slow send/poll cycle
	// must not be rejected for the time the cycle itself took.
	reference := e.now()

	latest, err := e.store.LatestDataStatus(ctx)
	if err != nil {
		return Result{}, err
	}

	stale := latest == nil || reference.Sub(latest.DateTime) > e.opts.MaxAge

	if force || stale {
		return e.refresh(ctx, reference)
	}

	if latest != nil {
		return Result{Kind: KindFresh, Status: observationStatus(latest)}, nil
	}
	return Result{Kind: KindLoading, Stale: true}, nil
}

func (e *Engine) refresh(ctx context.Context, reference time.Time) (Result, error) {
	if err := e.gateway.SendSMS(ctx, e.opts.Shortcode, e.opts.Keyword); err != nil {
		return Result{Kind: KindError, Stale: true, Err: err}, nil
	}

	start := e.now()
	for {
		if err := sleep(ctx, e.opts.Poll); err != nil {
			return Result{}, err
		}

		current, err := e.newestInboxStatus(ctx)
		if err != nil {
			return Result{}, err
		}

		if current != nil && reference.Sub(current.DateTime) <= e.opts.MaxAge {
			return Result{Kind: KindFresh, Status: current}, nil
		}

		if e.now().Sub(start) > e.opts.Timeout {
			return Result{Kind: KindError, Status: current, Stale: true, Err: ErrReplyTimeout}, nil
		}
	}
}

// newestInboxStatus enumerates the inbox and returns the observation decoded
// from the newest parseable balance reply, or nil when none matches.
func (e *Engine) newestInboxStatus(ctx context.Context) (*carrier.DataStatus, error) {
	smses, err := e.gateway.ListInbox(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(smses, func(i, j int) bool {
		return smsSortKey(smses[i]).After(smsSortKey(smses[j]))
	})

	for _, sms := range smses {
		at, ok := carrier.SmsTime(sms)
		if !ok {
			metrics.ParseMisses.Inc()
			e.logger.Debug().Str("sms_id", sms.ID).Str("from", sms.From).Msg("could not parse SMS date")
			continue
		}
		if ds := carrier.ParseMessage(sms.Message, at); ds != nil {
			return ds, nil
		}
	}
	return nil, nil
}

// smsSortKey orders entries newest-first; entries with unparseable dates
// sink to the end.
func smsSortKey(sms mikrotik.Sms) time.Time {
	if at, ok := carrier.SmsTime(sms); ok {
		return at
	}
	return time.Time{}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func observationStatus(obs *storage.Observation) *carrier.DataStatus {
	return &carrier.DataStatus{
		RemainingPercentage: obs.RemainingPercentage,
		RemainingDataMB:     obs.RemainingDataMB,
		DateTime:            obs.DateTime,
	}
}
