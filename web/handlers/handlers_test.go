package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/pinpoint/internal/cache"
	"github.com/scrypster/pinpoint/internal/engine"
	"github.com/scrypster/pinpoint/internal/gateway"
	"github.com/scrypster/pinpoint/internal/idempotency"
	"github.com/scrypster/pinpoint/internal/ratelimit"
	"github.com/scrypster/pinpoint/pkg/types"
	"github.com/scrypster/pinpoint/web/handlers"
)

type MockEnricher struct {
	mock.Mock
}

func (m *MockEnricher) Enrich(ctx context.Context, req engine.Request) (*engine.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*engine.Result)
	return res, args.Error(1)
}

type MockAnnotator struct {
	mock.Mock
}

func (m *MockAnnotator) Annotate(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*gateway.Result)
	return res, args.Error(1)
}

type MockBreakers struct {
	mock.Mock
}

func (m *MockBreakers) States() map[string]string {
	return m.Called().Get(0).(map[string]string)
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handlers.ErrorResponse {
	t.Helper()
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// Enrich

func TestEnrich_Success(t *testing.T) {
	point := types.Coordinate{Lat: -33.8847, Lng: 18.9267}
	pin := types.EnrichedPin{
		Place:       types.PlaceIdentity{Coordinate: point, Name: "Babylonstoren", Source: types.SourceFoursquare},
		Description: "A Cape Dutch farm.",
		Images:      []types.ImageRecord{},
	}
	enricher := &MockEnricher{}
	enricher.On("Enrich", mock.Anything, engine.Request{Coordinate: point, Hint: "Babylonstoren"}).
		Return(&engine.Result{Pin: pin}, nil).Once()

	h := handlers.NewEnrichHandler(enricher)
	w := httptest.NewRecorder()
	h.Enrich(w, postJSON("/api/enrich", `{"lat":-33.8847,"lng":18.9267,"userHintName":"Babylonstoren"}`))

	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.EnrichResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "Babylonstoren", resp.Data.Place.Name)
	assert.Equal(t, "A Cape Dutch farm.", resp.Data.Description)
	enricher.AssertExpectations(t)
}

func TestEnrich_EmptyEnrichmentStillOK(t *testing.T) {
	enricher := &MockEnricher{}
	enricher.On("Enrich", mock.Anything, mock.Anything).Return(&engine.Result{Pin: types.EnrichedPin{
		Place:  types.PlaceIdentity{Name: "Corner Spaza"},
		Images: []types.ImageRecord{},
	}}, nil)

	w := httptest.NewRecorder()
	handlers.NewEnrichHandler(enricher).Enrich(w, postJSON("/api/enrich", `{"lat":0,"lng":0}`))

	require.Equal(t, http.StatusOK, w.Code)
	var raw struct {
		Status string                 `json:"status"`
		Data   map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, "ok", raw.Status)
	assert.NotContains(t, raw.Data, "description")
	assert.Equal(t, []interface{}{}, raw.Data["images"])
}

func TestEnrich_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"latitude out of range", `{"lat":91,"lng":0}`},
		{"longitude out of range", `{"lat":0,"lng":-181}`},
		{"missing longitude", `{"lat":10}`},
		{"not a number", `{"lat":"north","lng":0}`},
		{"malformed JSON", `{"lat":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enricher := &MockEnricher{}
			w := httptest.NewRecorder()
			handlers.NewEnrichHandler(enricher).Enrich(w, postJSON("/api/enrich", tt.body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeError(t, w)
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.Details["error"])
			enricher.AssertNotCalled(t, "Enrich", mock.Anything, mock.Anything)
		})
	}
}

func TestEnrich_InternalErrorDoesNotLeak(t *testing.T) {
	enricher := &MockEnricher{}
	enricher.On("Enrich", mock.Anything, mock.Anything).
		Return(nil, errors.New("dial tcp 10.0.0.5:5432: secret-dsn refused"))

	w := httptest.NewRecorder()
	handlers.NewEnrichHandler(enricher).Enrich(w, postJSON("/api/enrich", `{"lat":1,"lng":2}`))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret-dsn")
}

// Intelligence

func newIntelligence(annotator handlers.Annotator) (*handlers.IntelligenceHandler, *ratelimit.Limiter, *idempotency.Store) {
	limiter := ratelimit.New(ratelimit.Config{PerMinute: 5, PerHour: 60})
	replays := idempotency.New(idempotency.DefaultWindow)
	return handlers.NewIntelligenceHandler(annotator, limiter, replays), limiter, replays
}

func sampleAnnotation() *gateway.Result {
	return &gateway.Result{
		Source: gateway.SourcePOI,
		Geocode: &types.GeocodeResult{
			FormattedAddress: "Greenmarket Square, Cape Town",
			Locality:         "Cape Town",
		},
		Places: []types.POI{{ID: "fsq-1", Name: "Greenmarket Square", Categories: []string{"Market"}}},
		POIMetadata: &gateway.POIMetadata{
			ID:               "fsq-1",
			Name:             "Greenmarket Square",
			Distance:         42,
			AcceptanceRadius: gateway.AcceptRadius,
			NearbyCount:      12,
		},
	}
}

func TestIntelligence_Success(t *testing.T) {
	annotator := &MockAnnotator{}
	annotator.On("Annotate", mock.Anything, gateway.Request{
		Coordinate: types.Coordinate{Lat: -33.9249, Lng: 18.4241},
		Precision:  types.DefaultKeyPrecision,
	}).Return(sampleAnnotation(), nil)

	h, _, _ := newIntelligence(annotator)
	w := httptest.NewRecorder()
	h.Annotate(w, postJSON("/api/intelligence", `{"lat":-33.9249,"lng":18.4241}`))

	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.IntelligenceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, gateway.SourcePOI, resp.Meta.Source)
	assert.False(t, resp.Meta.Cached)
	assert.Equal(t, 4, resp.Meta.Rate.MinuteRemaining)
	assert.Equal(t, 59, resp.Meta.Rate.HourRemaining)
	assert.NotEmpty(t, resp.Meta.RequestID)
	require.NotNil(t, resp.POIMetadata)
	assert.Equal(t, 12, resp.POIMetadata.NearbyCount)
	assert.Len(t, resp.Places, 1)
}

func TestIntelligence_SixthRequestWithinMinuteIsRejected(t *testing.T) {
	annotator := &MockAnnotator{}
	annotator.On("Annotate", mock.Anything, mock.Anything).Return(sampleAnnotation(), nil)
	h, _, _ := newIntelligence(annotator)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.Annotate(w, postJSON("/api/intelligence", `{"lat":1,"lng":2}`))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := httptest.NewRecorder()
	h.Annotate(w, postJSON("/api/intelligence", `{"lat":1,"lng":2}`))

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "RATE_LIMITED", resp.Code)
	assert.EqualValues(t, 0, resp.Details["minuteRemaining"])
	assert.EqualValues(t, 55, resp.Details["hourRemaining"])
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.True(t, retry >= 1 && retry <= 60)
	annotator.AssertNumberOfCalls(t, "Annotate", 5)
}

func TestIntelligence_LimitsAreIndependentPerClient(t *testing.T) {
	annotator := &MockAnnotator{}
	annotator.On("Annotate", mock.Anything, mock.Anything).Return(sampleAnnotation(), nil)
	h, _, _ := newIntelligence(annotator)

	for i := 0; i < 6; i++ {
		w := httptest.NewRecorder()
		h.Annotate(w, postJSON("/api/intelligence", `{"lat":1,"lng":2}`))
	}

	req := postJSON("/api/intelligence", `{"lat":1,"lng":2}`)
	req.RemoteAddr = "198.51.100.7:4000"
	w := httptest.NewRecorder()
	h.Annotate(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIntelligence_IdempotentReplayIsByteIdentical(t *testing.T) {
	annotator := &MockAnnotator{}
	annotator.On("Annotate", mock.Anything, mock.Anything).Return(sampleAnnotation(), nil).Once()
	h, limiter, _ := newIntelligence(annotator)

	send := func() *httptest.ResponseRecorder {
		req := postJSON("/api/intelligence", `{"lat":-33.9249,"lng":18.4241}`)
		req.Header.Set(handlers.IdempotencyHeader, "pin-42")
		w := httptest.NewRecorder()
		h.Annotate(w, req)
		return w
	}

	first := send()
	require.Equal(t, http.StatusOK, first.Code)
	second := send()
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	annotator.AssertNumberOfCalls(t, "Annotate", 1)

	minute, _ := limiter.Peek(limiter.ClientID(postJSON("/", "")))
	assert.Equal(t, 4, minute, "a replay does not consume quota")
}

func TestIntelligence_ConcurrentRetriesShareOneResponse(t *testing.T) {
	annotator := &MockAnnotator{}
	annotator.On("Annotate", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(100 * time.Millisecond) }).
		Return(sampleAnnotation(), nil)
	h, limiter, _ := newIntelligence(annotator)

	var (
		wg     sync.WaitGroup
		bodies [2][]byte
		codes  [2]int
	)
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := postJSON("/api/intelligence", `{"lat":-33.9249,"lng":18.4241}`)
			req.Header.Set(handlers.IdempotencyHeader, "pin-42")
			w := httptest.NewRecorder()
			h.Annotate(w, req)
			codes[i] = w.Code
			bodies[i] = w.Body.Bytes()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, [2]int{http.StatusOK, http.StatusOK}, codes)
	assert.Equal(t, bodies[0], bodies[1])
	annotator.AssertNumberOfCalls(t, "Annotate", 1)

	minute, _ := limiter.Peek(limiter.ClientID(postJSON("/", "")))
	assert.Equal(t, 4, minute)
}

func TestIntelligence_FailuresAreNotStored(t *testing.T) {
	annotator := &MockAnnotator{}
	annotator.On("Annotate", mock.Anything, mock.Anything).Return(nil, gateway.ErrUpstream).Once()
	annotator.On("Annotate", mock.Anything, mock.Anything).Return(sampleAnnotation(), nil).Once()
	h, _, replays := newIntelligence(annotator)

	send := func() int {
		req := postJSON("/api/intelligence", `{"lat":1,"lng":2}`)
		req.Header.Set(handlers.IdempotencyHeader, "retry-me")
		w := httptest.NewRecorder()
		h.Annotate(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusBadGateway, send())
	assert.Equal(t, 0, replays.Len())
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, 1, replays.Len())
}

func TestIntelligence_UpstreamExhaustion(t *testing.T) {
	annotator := &MockAnnotator{}
	annotator.On("Annotate", mock.Anything, mock.Anything).
		Return(nil, errors.Join(gateway.ErrUpstream, errors.New("foursquare: status 503")))
	h, _, _ := newIntelligence(annotator)

	w := httptest.NewRecorder()
	h.Annotate(w, postJSON("/api/intelligence", `{"lat":1,"lng":2}`))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "foursquare")
}

func TestIntelligence_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		header string
	}{
		{"out of range", `{"lat":100,"lng":0}`, ""},
		{"precision too low", `{"lat":1,"lng":2,"precision":1}`, ""},
		{"precision too high", `{"lat":1,"lng":2,"precision":7}`, ""},
		{"blank idempotency key", `{"lat":1,"lng":2}`, "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			annotator := &MockAnnotator{}
			h, limiter, _ := newIntelligence(annotator)
			req := postJSON("/api/intelligence", tt.body)
			if tt.header != "" {
				req.Header.Set(handlers.IdempotencyHeader, tt.header)
			}
			w := httptest.NewRecorder()
			h.Annotate(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			annotator.AssertNotCalled(t, "Annotate", mock.Anything, mock.Anything)
			assert.Equal(t, 0, limiter.Len(), "invalid requests are not counted")
		})
	}
}

func TestIntelligence_CustomPrecision(t *testing.T) {
	annotator := &MockAnnotator{}
	annotator.On("Annotate", mock.Anything, mock.MatchedBy(func(r gateway.Request) bool {
		return r.Precision == 3
	})).Return(&gateway.Result{Source: gateway.SourceGeocode}, nil)
	h, _, _ := newIntelligence(annotator)

	w := httptest.NewRecorder()
	h.Annotate(w, postJSON("/api/intelligence", `{"lat":1,"lng":2,"precision":3}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"places":[]`)
	assert.NotContains(t, w.Body.String(), "poi_metadata")
}

// Stats

func TestGetStats(t *testing.T) {
	c, err := cache.NewTiered(10)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), "pin:1,2", []byte(`{}`), time.Hour))

	breakers := &MockBreakers{}
	breakers.On("States").Return(map[string]string{"foursquare": "closed", "mapbox": "open"})

	limiter := ratelimit.New(ratelimit.Config{})
	limiter.Allow("203.0.113.9")

	h := handlers.NewStatsHandler(c, breakers, limiter, idempotency.New(0), nil)
	w := httptest.NewRecorder()
	h.GetStats(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Cache.LocalEntries)
	assert.False(t, resp.Cache.Remote)
	assert.Equal(t, "open", resp.Breakers["mapbox"])
	assert.Equal(t, 1, resp.RateLimiter.Entries)
	assert.Equal(t, 0, resp.WebSocket.Entries)
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	handlers.Health(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
