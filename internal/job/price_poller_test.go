package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"farewatch/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type fakeRegistry struct {
	mu     sync.Mutex
	due    []*domain.TrackedRoute
	dueErr error

	stamped  []string
	stampErr error
}

func (f *fakeRegistry) DueForPolling(_ context.Context, _ time.Time) ([]*domain.TrackedRoute, error) {
	return f.due, f.dueErr
}

func (f *fakeRegistry) MarkPolled(_ context.Context, routeID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stampErr != nil {
		return f.stampErr
	}
	f.stamped = append(f.stamped, routeID)
	return nil
}

func (f *fakeRegistry) stampedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stamped...)
}

type fakeHistory struct {
	mu        sync.Mutex
	average   float64
	avgErr    error
	appended  []*domain.PriceObservation
	appendErr error
}

func (f *fakeHistory) AveragePrice(_ context.Context, _ string) (float64, error) {
	return f.average, f.avgErr
}

func (f *fakeHistory) Append(_ context.Context, obs *domain.PriceObservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, obs)
	return nil
}

type fakeAlerts struct {
	mu        sync.Mutex
	appended  []*domain.PriceAlert
	appendErr error
}

func (f *fakeAlerts) Append(_ context.Context, alert *domain.PriceAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, alert)
	return nil
}

type fakeProvider struct {
	mu      sync.Mutex
	quote   *domain.PriceQuote
	err     error
	panics  bool
	queries []domain.RouteQuery
}

func (f *fakeProvider) QuoteRoute(_ context.Context, q domain.RouteQuery) (*domain.PriceQuote, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.panics {
		panic("provider blew up")
	}
	return f.quote, f.err
}

func testRoute() *domain.TrackedRoute {
	return &domain.TrackedRoute{
		ID:               "route-1",
		UserID:           "user-1",
		Origin:           "MAD",
		Destination:      "JFK",
		DepartureDate:    time.Now().UTC().AddDate(0, 2, 0),
		FlexibilityDays:  2,
		ThresholdPercent: 5,
		PollMinutes:      30,
		IsActive:         true,
	}
}

func newTestPoller(reg *fakeRegistry, hist *fakeHistory, alerts *fakeAlerts, prov *fakeProvider) *PricePoller {
	return NewPricePoller(trace.NewNoopTracerProvider().Tracer("test"), reg, hist, alerts, prov, 60, 2)
}

func TestPollRouteAlertsOnDropBelowThreshold(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{due: []*domain.TrackedRoute{testRoute()}}
	hist := &fakeHistory{average: 500}
	alerts := &fakeAlerts{}
	prov := &fakeProvider{quote: &domain.PriceQuote{Price: 470, Currency: "EUR", RetrievedAt: time.Now()}}

	p := newTestPoller(reg, hist, alerts, prov)
	p.pollOnce(context.Background())

	if len(hist.appended) != 1 {
		t.Fatalf("observations = %d, want 1", len(hist.appended))
	}
	if hist.appended[0].Price != 470 {
		t.Errorf("observed price = %v, want 470", hist.appended[0].Price)
	}
	if len(alerts.appended) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts.appended))
	}
	a := alerts.appended[0]
	if a.OldPrice != 500 || a.NewPrice != 470 {
		t.Errorf("alert prices = %v -> %v, want 500 -> 470", a.OldPrice, a.NewPrice)
	}
	if a.PercentChange > -5.9 || a.PercentChange < -6.1 {
		t.Errorf("percent change = %v, want about -6", a.PercentChange)
	}
	if got := reg.stampedIDs(); len(got) != 1 || got[0] != "route-1" {
		t.Errorf("stamped = %v, want [route-1]", got)
	}
	if len(prov.queries) != 1 {
		t.Fatalf("provider queries = %d, want 1", len(prov.queries))
	}
	if q := prov.queries[0]; q.Origin != "MAD" || q.FlexibilityDays != 2 {
		t.Errorf("unexpected query %+v", q)
	}
}

func TestPollRoutePriceExactlyAtThresholdDoesNotAlert(t *testing.T) {
	t.Parallel()

	// 5% off a 500 average puts the threshold at 475; an offer at exactly
	// 475 records an observation but no alert.
	reg := &fakeRegistry{due: []*domain.TrackedRoute{testRoute()}}
	hist := &fakeHistory{average: 500}
	alerts := &fakeAlerts{}
	prov := &fakeProvider{quote: &domain.PriceQuote{Price: 475, Currency: "EUR", RetrievedAt: time.Now()}}

	p := newTestPoller(reg, hist, alerts, prov)
	p.pollOnce(context.Background())

	if len(hist.appended) != 1 {
		t.Fatalf("observations = %d, want 1", len(hist.appended))
	}
	if len(alerts.appended) != 0 {
		t.Errorf("alerts = %d, want none at the threshold boundary", len(alerts.appended))
	}
	if len(reg.stampedIDs()) != 1 {
		t.Error("expected route stamped")
	}
}

func TestPollRouteFirstObservationNeverAlerts(t *testing.T) {
	t.Parallel()

	// Empty history reports a zero average; the alert rule ignores it.
	reg := &fakeRegistry{due: []*domain.TrackedRoute{testRoute()}}
	hist := &fakeHistory{average: 0}
	alerts := &fakeAlerts{}
	prov := &fakeProvider{quote: &domain.PriceQuote{Price: 470, Currency: "EUR", RetrievedAt: time.Now()}}

	p := newTestPoller(reg, hist, alerts, prov)
	p.pollOnce(context.Background())

	if len(hist.appended) != 1 {
		t.Fatalf("observations = %d, want 1", len(hist.appended))
	}
	if len(alerts.appended) != 0 {
		t.Errorf("alerts = %d, want none with empty history", len(alerts.appended))
	}
}

func TestPollRouteNoOffersStampsWithoutObservation(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{due: []*domain.TrackedRoute{testRoute()}}
	hist := &fakeHistory{}
	alerts := &fakeAlerts{}
	prov := &fakeProvider{quote: nil}

	p := newTestPoller(reg, hist, alerts, prov)
	p.pollOnce(context.Background())

	if len(hist.appended) != 0 {
		t.Errorf("observations = %d, want none", len(hist.appended))
	}
	if len(reg.stampedIDs()) != 1 {
		t.Error("expected route stamped despite empty result")
	}
}

func TestPollRouteProviderErrorStampsRoute(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{due: []*domain.TrackedRoute{testRoute()}}
	hist := &fakeHistory{}
	alerts := &fakeAlerts{}
	prov := &fakeProvider{err: errors.New("provider down")}

	p := newTestPoller(reg, hist, alerts, prov)
	p.pollOnce(context.Background())

	if len(hist.appended) != 0 {
		t.Errorf("observations = %d, want none", len(hist.appended))
	}
	if len(reg.stampedIDs()) != 1 {
		t.Error("expected route stamped so a dead provider does not hot-loop it")
	}
}

func TestPollRoutePersistenceFailureLeavesRouteUnstamped(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{due: []*domain.TrackedRoute{testRoute()}}
	hist := &fakeHistory{average: 500, appendErr: errors.New("db down")}
	alerts := &fakeAlerts{}
	prov := &fakeProvider{quote: &domain.PriceQuote{Price: 470, Currency: "EUR", RetrievedAt: time.Now()}}

	p := newTestPoller(reg, hist, alerts, prov)
	p.pollOnce(context.Background())

	if len(reg.stampedIDs()) != 0 {
		t.Error("expected route left unstamped so the next tick retries")
	}
}

func TestPollRouteAlertPersistenceFailureLeavesRouteUnstamped(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{due: []*domain.TrackedRoute{testRoute()}}
	hist := &fakeHistory{average: 500}
	alerts := &fakeAlerts{appendErr: errors.New("db down")}
	prov := &fakeProvider{quote: &domain.PriceQuote{Price: 470, Currency: "EUR", RetrievedAt: time.Now()}}

	p := newTestPoller(reg, hist, alerts, prov)
	p.pollOnce(context.Background())

	if len(reg.stampedIDs()) != 0 {
		t.Error("expected route left unstamped when the alert write fails")
	}
}

func TestPollRoutePanicIsContainedAndStamps(t *testing.T) {
	t.Parallel()

	routes := []*domain.TrackedRoute{testRoute(), testRoute()}
	routes[1].ID = "route-2"
	reg := &fakeRegistry{due: routes}
	hist := &fakeHistory{}
	alerts := &fakeAlerts{}
	prov := &fakeProvider{panics: true}

	p := newTestPoller(reg, hist, alerts, prov)
	p.pollOnce(context.Background())

	if got := reg.stampedIDs(); len(got) != 2 {
		t.Errorf("stamped = %v, want both routes despite panics", got)
	}
}

func TestPollRouteSkipsDepartedWithoutProviderCall(t *testing.T) {
	t.Parallel()

	route := testRoute()
	route.DepartureDate = time.Now().UTC().AddDate(0, 0, -1)
	reg := &fakeRegistry{due: []*domain.TrackedRoute{route}}
	hist := &fakeHistory{}
	alerts := &fakeAlerts{}
	prov := &fakeProvider{}

	p := newTestPoller(reg, hist, alerts, prov)
	p.pollOnce(context.Background())

	if len(prov.queries) != 0 {
		t.Errorf("provider queries = %d, want none for departed route", len(prov.queries))
	}
	if len(reg.stampedIDs()) != 0 {
		t.Error("expected departed route left unstamped")
	}
}

func TestPollOnceSkipsRouteAlreadyInFlight(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{due: []*domain.TrackedRoute{testRoute()}}
	hist := &fakeHistory{}
	alerts := &fakeAlerts{}
	prov := &fakeProvider{quote: &domain.PriceQuote{Price: 470, Currency: "EUR", RetrievedAt: time.Now()}}

	p := newTestPoller(reg, hist, alerts, prov)
	p.claim("route-1")
	p.pollOnce(context.Background())

	if len(prov.queries) != 0 {
		t.Errorf("provider queries = %d, want in-flight route skipped", len(prov.queries))
	}

	p.release("route-1")
	p.pollOnce(context.Background())
	if len(prov.queries) != 1 {
		t.Errorf("provider queries = %d, want route polled after release", len(prov.queries))
	}
}

func TestPollOnceQueryErrorIsNonFatal(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{dueErr: errors.New("db down")}
	p := newTestPoller(reg, &fakeHistory{}, &fakeAlerts{}, &fakeProvider{})
	p.pollOnce(context.Background())

	if len(reg.stampedIDs()) != 0 {
		t.Error("expected nothing stamped when the due query fails")
	}
}
