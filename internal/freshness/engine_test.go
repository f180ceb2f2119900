package freshness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gigawatch/internal/mikrotik"
	"gigawatch/internal/storage"
)

type fakeGateway struct {
	mu      sync.Mutex
	inbox   []mikrotik.Sms
	sendErr error
	sent    int
	onSend  func()
}

func (g *fakeGateway) ListInbox(context.Context) ([]mikrotik.Sms, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]mikrotik.Sms, len(g.inbox))
	copy(out, g.inbox)
	return out, nil
}

func (g *fakeGateway) SendSMS(context.Context, string, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sent++
	if g.onSend != nil {
		g.onSend()
	}
	return nil
}

func (g *fakeGateway) sentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sent
}

func (g *fakeGateway) setInbox(smses []mikrotik.Sms) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inbox = smses
}

type fakeStore struct {
	latest *storage.Observation
	err    error
}

func (s *fakeStore) LatestDataStatus(context.Context) (*storage.Observation, error) {
	return s.latest, s.err
}

func balanceSms(id string, at time.Time) mikrotik.Sms {
	return mikrotik.Sms{
		ID:        id,
		Message:   "Dati: hai ancora a disposizione il 73% di 100,0 GIGA di traffico",
		Timestamp: at.UTC().Format(time.RFC3339),
		From:      "4155",
	}
}

func testOptions() Options {
	return Options{
		MaxAge:    time.Hour,
		Timeout:   200 * time.Millisecond,
		Poll:      10 * time.Millisecond,
		Shortcode: "4155",
		Keyword:   "Dati",
	}
}

func TestFastPathDoesNotSend(t *testing.T) {
	gateway := &fakeGateway{}
	store := &fakeStore{latest: &storage.Observation{
		RemainingPercentage: 50,
		RemainingDataMB:     51_200,
		DateTime:            time.Now().UTC().Add(-10 * time.Minute),
	}}

	engine := New(gateway, store, testOptions(), zerolog.Nop())
	result, err := engine.Fetch(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != KindFresh {
		t.Fatalf("kind = %v, want fresh", result.Kind)
	}
	if result.Status.RemainingPercentage != 50 {
		t.Fatalf("percentage = %d, want 50", result.Status.RemainingPercentage)
	}
	if gateway.sentCount() != 0 {
		t.Fatalf("fresh fast path must not send an SMS, sent %d", gateway.sentCount())
	}
}

func TestRefreshYieldsNewerObservation(t *testing.T) {
	entryLatest := time.Now().UTC().Add(-2 * time.Hour)
	gateway := &fakeGateway{}
	// The carrier "replies" as a side effect of the keyword send.
	gateway.onSend = func() {
		gateway.inbox = append(gateway.inbox,
			balanceSms("*1", time.Now().UTC().Add(-3*time.Hour)),
			balanceSms("*2", time.Now().UTC()),
		)
	}
	store := &fakeStore{latest: &storage.Observation{DateTime: entryLatest}}

	engine := New(gateway, store, testOptions(), zerolog.Nop())
	result, err := engine.Fetch(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != KindFresh {
		t.Fatalf("kind = %v (err %v), want fresh", result.Kind, result.Err)
	}
	if gateway.sentCount() != 1 {
		t.Fatalf("sent = %d, want 1", gateway.sentCount())
	}
	if !result.Status.DateTime.After(entryLatest) {
		t.Fatalf("refresh must return an observation newer than the stored one: %v <= %v",
			result.Status.DateTime, entryLatest)
	}
}

func TestRefreshPicksNewestParseableReply(t *testing.T) {
	newest := time.Now().UTC()
	gateway := &fakeGateway{}
	gateway.setInbox([]mikrotik.Sms{
		balanceSms("*old", newest.Add(-30*time.Minute)),
		{ID: "*junk", Message: "Benvenuto in WindTre", Timestamp: newest.Format(time.RFC3339)},
		{ID: "*undated", Message: "Dati: hai ancora a disposizione il 1% di 100,0 GIGA"},
		balanceSms("*new", newest),
	})
	store := &fakeStore{}

	engine := New(gateway, store, testOptions(), zerolog.Nop())
	result, err := engine.Fetch(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != KindFresh {
		t.Fatalf("kind = %v, want fresh", result.Kind)
	}
	if !result.Status.DateTime.Equal(newest.Truncate(time.Second)) {
		t.Fatalf("got %v, want the newest balance reply at %v", result.Status.DateTime, newest)
	}
}

func TestSendFailureIsErrorOutcome(t *testing.T) {
	sendErr := errors.New("router unreachable")
	gateway := &fakeGateway{sendErr: sendErr}
	store := &fakeStore{}

	engine := New(gateway, store, testOptions(), zerolog.Nop())
	result, err := engine.Fetch(context.Background(), false)
	if err != nil {
		t.Fatalf("send failure must be an outcome, not an error: %v", err)
	}
	if result.Kind != KindError {
		t.Fatalf("kind = %v, want error", result.Kind)
	}
	if !result.Stale {
		t.Fatal("error outcome must report stale")
	}
	if !errors.Is(result.Err, sendErr) {
		t.Fatalf("err = %v, want %v", result.Err, sendErr)
	}
}

func TestTimeoutHonoured(t *testing.T) {
	gateway := &fakeGateway{}
	store := &fakeStore{}
	opts := testOptions()

	engine := New(gateway, store, opts, zerolog.Nop())
	started := time.Now()
	result, err := engine.Fetch(context.Background(), false)
	elapsed := time.Since(started)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != KindError {
		t.Fatalf("kind = %v, want error", result.Kind)
	}
	if !errors.Is(result.Err, ErrReplyTimeout) {
		t.Fatalf("err = %v, want reply timeout", result.Err)
	}
	if elapsed > opts.Timeout+opts.Poll+100*time.Millisecond {
		t.Fatalf("engine took %v, want at most timeout+poll", elapsed)
	}
}

func TestForceBypassesFreshCheck(t *testing.T) {
	gateway := &fakeGateway{}
	gateway.onSend = func() {
		gateway.inbox = []mikrotik.Sms{balanceSms("*1", time.Now().UTC())}
	}
	store := &fakeStore{latest: &storage.Observation{DateTime: time.Now().UTC()}}

	engine := New(gateway, store, testOptions(), zerolog.Nop())
	result, err := engine.Fetch(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gateway.sentCount() != 1 {
		t.Fatalf("force must request a refresh, sent = %d", gateway.sentCount())
	}
	if result.Kind != KindFresh {
		t.Fatalf("kind = %v, want fresh", result.Kind)
	}
}

func TestCancellationStopsPolling(t *testing.T) {
	gateway := &fakeGateway{}
	store := &fakeStore{}
	opts := testOptions()
	opts.Timeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	engine := New(gateway, store, opts, zerolog.Nop())
	_, err := engine.Fetch(ctx, false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
