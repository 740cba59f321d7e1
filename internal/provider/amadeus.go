package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"farewatch/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	tokenPath  = "/v1/security/oauth2/token"
	offersPath = "/v2/shopping/flight-offers"

	offersPerDay   = 10
	quoteCacheSize = 512
)

// Options configures the Amadeus client's resilience and caching knobs.
type Options struct {
	APIKey          string
	APISecret       string
	BaseURL         string
	Timeout         time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
	QuoteTTL        time.Duration
	TokenMargin     time.Duration
}

// AmadeusClient turns "best price for this route across a date window" into a
// single quote. Every underlying network call goes through the rate limiter,
// the retry policy, the circuit breaker, and the HTTP client's fixed timeout,
// in that order.
type AmadeusClient struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	apiSecret string
	tracer    trace.Tracer
	limiter   *RateLimiter
	retry     *Retry
	breaker   *Breaker
	quotes    *TTLCache

	tokenMargin time.Duration
	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time

	now func() time.Time
}

func NewAmadeusClient(tracer trace.Tracer, opts Options) *AmadeusClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.amadeus.com"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AmadeusClient{
		client:      &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		apiKey:      opts.APIKey,
		apiSecret:   opts.APISecret,
		tracer:      tracer,
		limiter:     NewRateLimiter(8, 7500*time.Millisecond),
		retry:       NewRetry(opts.RetryAttempts, opts.RetryBackoff),
		breaker:     NewBreaker(opts.BreakerFailures, opts.BreakerCooldown),
		quotes:      NewTTLCache(quoteCacheSize, opts.QuoteTTL),
		tokenMargin: opts.TokenMargin,
		now:         time.Now,
	}
}

// QuoteRoute returns the cheapest qualifying offer across the route's date
// window, or (nil, nil) when no offer matches. Ties are broken first-seen.
func (c *AmadeusClient) QuoteRoute(ctx context.Context, q domain.RouteQuery) (*domain.PriceQuote, error) {
	ctx, span := c.tracer.Start(ctx, "amadeus.quote-route")
	defer span.End()
	span.SetAttributes(
		attribute.String("origin", q.Origin),
		attribute.String("destination", q.Destination),
		attribute.Int("flexibility_days", q.FlexibilityDays),
	)

	key := quoteKey(q)
	if cached, ok := c.quotes.Get(key); ok {
		return cached.(*domain.PriceQuote), nil
	}

	start := q.DepartureDate.AddDate(0, 0, -q.FlexibilityDays)
	end := q.DepartureDate.AddDate(0, 0, q.FlexibilityDays)

	var best *domain.PriceQuote
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		offers, err := c.fetchOffers(ctx, q.Origin, q.Destination, day)
		if err != nil {
			return nil, fmt.Errorf("quote %s-%s on %s: %w",
				q.Origin, q.Destination, day.Format("2006-01-02"), err)
		}
		retrievedAt := c.now().UTC()

		for _, offer := range offers {
			quote, err := offerToQuote(offer, day, retrievedAt)
			if err != nil {
				log.Printf("skipping malformed offer for %s-%s: %v", q.Origin, q.Destination, err)
				continue
			}
			if q.MaxStops != nil && quote.Stops > *q.MaxStops {
				continue
			}
			if best == nil || quote.Price < best.Price {
				best = quote
			}
		}
	}

	if best == nil {
		return nil, nil
	}

	c.quotes.Set(key, best)
	return best, nil
}

// SearchOffers lists every offer for a route across a date range, one
// provider call per day.
func (c *AmadeusClient) SearchOffers(ctx context.Context, origin, destination string, from, to time.Time) ([]domain.SearchResult, error) {
	ctx, span := c.tracer.Start(ctx, "amadeus.search-offers")
	defer span.End()

	var results []domain.SearchResult
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		offers, err := c.fetchOffers(ctx, origin, destination, day)
		if err != nil {
			return nil, fmt.Errorf("search %s-%s on %s: %w",
				origin, destination, day.Format("2006-01-02"), err)
		}
		for _, offer := range offers {
			result, err := offerToSearchResult(offer, origin, destination, day)
			if err != nil {
				continue
			}
			results = append(results, result)
		}
	}
	return results, nil
}

func (c *AmadeusClient) fetchOffers(ctx context.Context, origin, destination string, day time.Time) ([]flightOffer, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("originLocationCode", origin)
	params.Set("destinationLocationCode", destination)
	params.Set("departureDate", day.Format("2006-01-02"))
	params.Set("adults", "1")
	params.Set("max", strconv.Itoa(offersPerDay))

	body, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+offersPath+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if body == nil {
		// Non-retryable client error for this day; treated as no offers.
		return nil, nil
	}

	var resp flightOffersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse offers: %w", err)
	}
	return resp.Data, nil
}

// accessToken returns the cached OAuth token, refreshing it once the expiry
// minus the safety margin has passed.
func (c *AmadeusClient) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry.Add(-c.tokenMargin)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.apiKey)
	form.Set("client_secret", c.apiSecret)
	encoded := form.Encode()

	body, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+tokenPath, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	if body == nil {
		return "", fmt.Errorf("authenticate: provider rejected credentials")
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("authenticate: empty access token")
	}

	c.token = tr.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	log.Printf("obtained provider access token, expires in %ds", tr.ExpiresIn)
	return c.token, nil
}

// do performs one logical provider call: rate limit, then retry around the
// circuit breaker around the HTTP round trip. A nil body with nil error means
// a non-retryable client rejection (4xx other than 429).
func (c *AmadeusClient) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var body []byte
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.breaker.Allow(); err != nil {
			return err
		}

		req, err := build(ctx)
		if err != nil {
			return err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			c.breaker.RecordFailure()
			return Transient(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				c.breaker.RecordFailure()
				return Transient(err)
			}
			c.breaker.RecordSuccess()
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.breaker.RecordFailure()
			raw, _ := io.ReadAll(resp.Body)
			return Transient(fmt.Errorf("provider error %d: %s", resp.StatusCode, string(raw)))
		default:
			// 4xx: the request itself is bad, not the provider. Don't trip
			// the breaker and don't retry.
			c.breaker.RecordSuccess()
			raw, _ := io.ReadAll(resp.Body)
			log.Printf("provider rejected request with %d: %s", resp.StatusCode, string(raw))
			body = nil
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func quoteKey(q domain.RouteQuery) string {
	stops := "any"
	if q.MaxStops != nil {
		stops = strconv.Itoa(*q.MaxStops)
	}
	return fmt.Sprintf("quote:%s:%s:%s:%d:%s",
		q.Origin, q.Destination, q.DepartureDate.Format("2006-01-02"), q.FlexibilityDays, stops)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type flightOffersResponse struct {
	Data []flightOffer `json:"data"`
}

type flightOffer struct {
	Price                  offerPrice  `json:"price"`
	ValidatingAirlineCodes []string    `json:"validatingAirlineCodes"`
	Itineraries            []itinerary `json:"itineraries"`
}

type offerPrice struct {
	Currency   string `json:"currency"`
	GrandTotal string `json:"grandTotal"`
}

type itinerary struct {
	Duration string    `json:"duration"`
	Segments []segment `json:"segments"`
}

type segment struct {
	Departure   endpoint `json:"departure"`
	Arrival     endpoint `json:"arrival"`
	CarrierCode string   `json:"carrierCode"`
	Number      string   `json:"number"`
}

type endpoint struct {
	IATACode string `json:"iataCode"`
	At       string `json:"at"`
}

const segmentTimeLayout = "2006-01-02T15:04:05"

func offerToQuote(offer flightOffer, day, retrievedAt time.Time) (*domain.PriceQuote, error) {
	price, err := strconv.ParseFloat(offer.Price.GrandTotal, 64)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", offer.Price.GrandTotal, err)
	}

	quote := &domain.PriceQuote{
		Price:       price,
		Currency:    offer.Price.Currency,
		RetrievedAt: retrievedAt,
		Stops:       offerStops(offer),
	}
	if len(offer.ValidatingAirlineCodes) > 0 {
		quote.Carrier = offer.ValidatingAirlineCodes[0]
	}

	if len(offer.Itineraries) > 0 && len(offer.Itineraries[0].Segments) > 0 {
		segments := offer.Itineraries[0].Segments
		details := &domain.OfferDetails{DepartureDate: day}
		for _, s := range segments {
			dep, _ := time.Parse(segmentTimeLayout, s.Departure.At)
			arr, _ := time.Parse(segmentTimeLayout, s.Arrival.At)
			details.Segments = append(details.Segments, domain.SegmentDetail{
				Origin:       s.Departure.IATACode,
				Destination:  s.Arrival.IATACode,
				DepartureAt:  dep,
				ArrivalAt:    arr,
				Carrier:      s.CarrierCode,
				FlightNumber: s.CarrierCode + s.Number,
			})
		}
		first := details.Segments[0]
		last := details.Segments[len(details.Segments)-1]
		details.ArrivalTime = last.ArrivalAt
		details.Duration = last.ArrivalAt.Sub(first.DepartureAt)
		quote.Offer = details
	}

	return quote, nil
}

func offerToSearchResult(offer flightOffer, origin, destination string, day time.Time) (domain.SearchResult, error) {
	price, err := strconv.ParseFloat(offer.Price.GrandTotal, 64)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("parse price %q: %w", offer.Price.GrandTotal, err)
	}
	if len(offer.Itineraries) == 0 || len(offer.Itineraries[0].Segments) == 0 {
		return domain.SearchResult{}, fmt.Errorf("offer without segments")
	}

	segments := offer.Itineraries[0].Segments
	first := segments[0]
	last := segments[len(segments)-1]
	dep, _ := time.Parse(segmentTimeLayout, first.Departure.At)
	arr, _ := time.Parse(segmentTimeLayout, last.Arrival.At)

	carrier := first.CarrierCode
	if len(offer.ValidatingAirlineCodes) > 0 {
		carrier = offer.ValidatingAirlineCodes[0]
	}

	return domain.SearchResult{
		FlightNumber:  first.CarrierCode + first.Number,
		Carrier:       carrier,
		Origin:        origin,
		Destination:   destination,
		DepartureDate: day,
		DepartureAt:   dep,
		ArrivalAt:     arr,
		Price:         price,
		Currency:      offer.Price.Currency,
		Stops:         len(segments) - 1,
	}, nil
}

func offerStops(offer flightOffer) int {
	if len(offer.Itineraries) == 0 {
		return 0
	}
	n := len(offer.Itineraries[0].Segments)
	if n == 0 {
		return 0
	}
	return n - 1
}
