package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"farewatch/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

func testDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

// amadeusStub is an httptest server speaking just enough of the provider API
// for the client: a token endpoint plus a per-date offers table.
type amadeusStub struct {
	t           *testing.T
	tokenCalls  atomic.Int64
	offerCalls  atomic.Int64
	offersByDay map[string]string
	offersCode  int
	failFirst   atomic.Int64
}

func (s *amadeusStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+tokenPath, func(w http.ResponseWriter, r *http.Request) {
		s.tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			s.t.Errorf("parse token form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			s.t.Errorf("grant_type = %q, want client_credentials", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "Bearer",
			"expires_in":   1799,
		})
	})
	mux.HandleFunc("GET "+offersPath, func(w http.ResponseWriter, r *http.Request) {
		s.offerCalls.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			s.t.Errorf("Authorization = %q, want Bearer tok-123", got)
		}
		if s.failFirst.Load() > 0 {
			s.failFirst.Add(-1)
			http.Error(w, `{"errors":[{"status":500}]}`, http.StatusInternalServerError)
			return
		}
		if s.offersCode != 0 && s.offersCode != http.StatusOK {
			http.Error(w, `{"errors":[{"status":400}]}`, s.offersCode)
			return
		}
		day := r.URL.Query().Get("departureDate")
		body, ok := s.offersByDay[day]
		if !ok {
			body = `{"data":[]}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
	return mux
}

func offerJSON(price, carrier string, segments int) string {
	segs := ""
	for i := 0; i < segments; i++ {
		if i > 0 {
			segs += ","
		}
		segs += `{"departure":{"iataCode":"AAA","at":"2026-10-10T08:00:00"},` +
			`"arrival":{"iataCode":"BBB","at":"2026-10-10T11:30:00"},` +
			`"carrierCode":"` + carrier + `","number":"101"}`
	}
	return `{"price":{"currency":"EUR","grandTotal":"` + price + `"},` +
		`"validatingAirlineCodes":["` + carrier + `"],` +
		`"itineraries":[{"duration":"PT3H30M","segments":[` + segs + `]}]}`
}

func newTestClient(t *testing.T, stub *amadeusStub) *AmadeusClient {
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	c := NewAmadeusClient(trace.NewNoopTracerProvider().Tracer("test"), Options{
		APIKey:          "key",
		APISecret:       "secret",
		BaseURL:         srv.URL,
		Timeout:         5 * time.Second,
		RetryAttempts:   3,
		RetryBackoff:    time.Millisecond,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
		QuoteTTL:        5 * time.Minute,
		TokenMargin:     60 * time.Second,
	})
	c.limiter = NewRateLimiter(1000, time.Millisecond)
	return c
}

func TestQuoteRoutePicksCheapestAcrossWindow(t *testing.T) {
	t.Parallel()

	stub := &amadeusStub{t: t, offersByDay: map[string]string{
		"2026-10-09": `{"data":[` + offerJSON("520.00", "LH", 1) + `]}`,
		"2026-10-10": `{"data":[` + offerJSON("480.50", "AF", 2) + `,` + offerJSON("495.00", "KL", 1) + `]}`,
		"2026-10-11": `{"data":[` + offerJSON("610.00", "BA", 1) + `]}`,
	}}
	c := newTestClient(t, stub)

	quote, err := c.QuoteRoute(context.Background(), domain.RouteQuery{
		Origin:          "MAD",
		Destination:     "JFK",
		DepartureDate:   testDate("2026-10-10"),
		FlexibilityDays: 1,
	})
	if err != nil {
		t.Fatalf("QuoteRoute: %v", err)
	}
	if quote == nil {
		t.Fatal("expected a quote")
	}
	if quote.Price != 480.50 {
		t.Errorf("price = %v, want 480.50", quote.Price)
	}
	if quote.Currency != "EUR" {
		t.Errorf("currency = %q, want EUR", quote.Currency)
	}
	if quote.Carrier != "AF" {
		t.Errorf("carrier = %q, want AF", quote.Carrier)
	}
	if quote.Stops != 1 {
		t.Errorf("stops = %d, want 1", quote.Stops)
	}
	if got := stub.offerCalls.Load(); got != 3 {
		t.Errorf("offer calls = %d, want one per day in the window", got)
	}
	if got := stub.tokenCalls.Load(); got != 1 {
		t.Errorf("token calls = %d, want token reused across the window", got)
	}
}

func TestQuoteRouteFiltersByMaxStops(t *testing.T) {
	t.Parallel()

	stub := &amadeusStub{t: t, offersByDay: map[string]string{
		"2026-10-10": `{"data":[` + offerJSON("300.00", "IB", 3) + `,` + offerJSON("450.00", "LH", 1) + `]}`,
	}}
	c := newTestClient(t, stub)

	maxStops := 1
	quote, err := c.QuoteRoute(context.Background(), domain.RouteQuery{
		Origin:        "MAD",
		Destination:   "JFK",
		DepartureDate: testDate("2026-10-10"),
		MaxStops:      &maxStops,
	})
	if err != nil {
		t.Fatalf("QuoteRoute: %v", err)
	}
	if quote == nil {
		t.Fatal("expected a quote")
	}
	// The cheaper 2-stop offer is excluded by the filter.
	if quote.Price != 450.00 {
		t.Errorf("price = %v, want 450.00", quote.Price)
	}
}

func TestQuoteRouteNoOffers(t *testing.T) {
	t.Parallel()

	stub := &amadeusStub{t: t, offersByDay: map[string]string{}}
	c := newTestClient(t, stub)

	quote, err := c.QuoteRoute(context.Background(), domain.RouteQuery{
		Origin:        "MAD",
		Destination:   "JFK",
		DepartureDate: testDate("2026-10-10"),
	})
	if err != nil {
		t.Fatalf("QuoteRoute: %v", err)
	}
	if quote != nil {
		t.Errorf("expected nil quote when no offers exist, got %+v", quote)
	}
}

func TestQuoteRouteCachesResult(t *testing.T) {
	t.Parallel()

	stub := &amadeusStub{t: t, offersByDay: map[string]string{
		"2026-10-10": `{"data":[` + offerJSON("480.50", "AF", 1) + `]}`,
	}}
	c := newTestClient(t, stub)

	q := domain.RouteQuery{Origin: "MAD", Destination: "JFK", DepartureDate: testDate("2026-10-10")}
	if _, err := c.QuoteRoute(context.Background(), q); err != nil {
		t.Fatalf("first QuoteRoute: %v", err)
	}
	if _, err := c.QuoteRoute(context.Background(), q); err != nil {
		t.Fatalf("second QuoteRoute: %v", err)
	}
	if got := stub.offerCalls.Load(); got != 1 {
		t.Errorf("offer calls = %d, want second lookup served from cache", got)
	}
}

func TestQuoteRouteRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	stub := &amadeusStub{t: t, offersByDay: map[string]string{
		"2026-10-10": `{"data":[` + offerJSON("480.50", "AF", 1) + `]}`,
	}}
	stub.failFirst.Store(2)
	c := newTestClient(t, stub)

	quote, err := c.QuoteRoute(context.Background(), domain.RouteQuery{
		Origin:        "MAD",
		Destination:   "JFK",
		DepartureDate: testDate("2026-10-10"),
	})
	if err != nil {
		t.Fatalf("QuoteRoute: %v", err)
	}
	if quote == nil || quote.Price != 480.50 {
		t.Fatalf("expected retried quote, got %+v", quote)
	}
	if got := stub.offerCalls.Load(); got != 3 {
		t.Errorf("offer calls = %d, want 2 failures plus 1 success", got)
	}
}

func TestQuoteRouteClientErrorTreatedAsNoOffers(t *testing.T) {
	t.Parallel()

	stub := &amadeusStub{t: t, offersCode: http.StatusBadRequest}
	c := newTestClient(t, stub)

	quote, err := c.QuoteRoute(context.Background(), domain.RouteQuery{
		Origin:        "MAD",
		Destination:   "JFK",
		DepartureDate: testDate("2026-10-10"),
	})
	if err != nil {
		t.Fatalf("QuoteRoute: %v", err)
	}
	if quote != nil {
		t.Errorf("expected nil quote on client rejection, got %+v", quote)
	}
	if got := stub.offerCalls.Load(); got != 1 {
		t.Errorf("offer calls = %d, want 4xx not retried", got)
	}
}

func TestQuoteRouteFailsFastWhenCircuitOpen(t *testing.T) {
	t.Parallel()

	stub := &amadeusStub{t: t, offersByDay: map[string]string{}}
	c := newTestClient(t, stub)

	for i := 0; i < 5; i++ {
		c.breaker.RecordFailure()
	}

	_, err := c.QuoteRoute(context.Background(), domain.RouteQuery{
		Origin:        "MAD",
		Destination:   "JFK",
		DepartureDate: testDate("2026-10-10"),
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if got := stub.offerCalls.Load(); got != 0 {
		t.Errorf("offer calls = %d, want none while circuit is open", got)
	}
}

func TestAccessTokenRefreshesWithinSafetyMargin(t *testing.T) {
	t.Parallel()

	stub := &amadeusStub{t: t, offersByDay: map[string]string{}}
	c := newTestClient(t, stub)

	now := time.Now()
	c.now = func() time.Time { return now }

	if _, err := c.accessToken(context.Background()); err != nil {
		t.Fatalf("accessToken: %v", err)
	}
	if _, err := c.accessToken(context.Background()); err != nil {
		t.Fatalf("accessToken: %v", err)
	}
	if got := stub.tokenCalls.Load(); got != 1 {
		t.Fatalf("token calls = %d, want cached token reused", got)
	}

	// Inside the 60s safety margin the token counts as expired.
	now = now.Add(1799*time.Second - 30*time.Second)
	if _, err := c.accessToken(context.Background()); err != nil {
		t.Fatalf("accessToken: %v", err)
	}
	if got := stub.tokenCalls.Load(); got != 2 {
		t.Errorf("token calls = %d, want refresh inside safety margin", got)
	}
}

func TestSearchOffersListsWholeRange(t *testing.T) {
	t.Parallel()

	stub := &amadeusStub{t: t, offersByDay: map[string]string{
		"2026-10-10": `{"data":[` + offerJSON("480.50", "AF", 2) + `]}`,
		"2026-10-11": `{"data":[` + offerJSON("510.00", "LH", 1) + `]}`,
	}}
	c := newTestClient(t, stub)

	results, err := c.SearchOffers(context.Background(), "MAD", "JFK",
		testDate("2026-10-10"), testDate("2026-10-12"))
	if err != nil {
		t.Fatalf("SearchOffers: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Stops != 1 {
		t.Errorf("stops = %d, want segments minus one", results[0].Stops)
	}
	if results[0].FlightNumber != "AF101" {
		t.Errorf("flight number = %q, want AF101", results[0].FlightNumber)
	}
	if results[1].Price != 510.00 {
		t.Errorf("price = %v, want 510.00", results[1].Price)
	}
}
