package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"example.com/moodsync/internal/actuation"
	"example.com/moodsync/internal/actuator"
	"example.com/moodsync/internal/analysis"
	"example.com/moodsync/internal/catalog"
	"example.com/moodsync/internal/classifier"
	"example.com/moodsync/internal/clock"
	"example.com/moodsync/internal/domain"
	"example.com/moodsync/internal/hub"
	"example.com/moodsync/internal/persistence"
	"example.com/moodsync/internal/persistence/memory"
	"example.com/moodsync/internal/telemetry"
)

var epoch = time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)

type failingClassifier struct{}

func (failingClassifier) Name() string { return "failing" }

func (failingClassifier) Classify(context.Context, domain.Reading, string) (domain.Classification, error) {
	return domain.Classification{}, errors.New("upstream returned 503")
}

type stubActuators []actuator.SinkStatus

func (s stubActuators) Status() []actuator.SinkStatus { return s }

type runningFlag bool

func (r runningFlag) Running() bool { return bool(r) }

type fixture struct {
	gen        *telemetry.Generator
	hub        *hub.Hub
	controller *actuation.Controller
	journal    *memory.Journal
	mux        *http.ServeMux
}

func newFixture(t *testing.T, c classifier.Classifier, actuators ActuatorStatus) fixture {
	t.Helper()
	fake := clock.Fake(epoch)
	logger := zaptest.NewLogger(t)

	gen := telemetry.NewGenerator(telemetry.WithCapacity(5), telemetry.WithClock(fake), telemetry.WithRand(rand.New(rand.NewPCG(7, 9))))
	h := hub.New(hub.WithLogger(logger))
	controller := actuation.NewController(actuation.NewMapper(catalog.StaticCatalog{}, 3, fake, logger), h, nil, logger)
	h.RegisterSnapshot(hub.ChannelTelemetry, gen.Snapshot)
	h.RegisterSnapshot(hub.ChannelActuation, controller.Snapshot)
	journal := memory.NewJournal(10)

	service := analysis.NewService(gen, classifier.NewGuarded(c, time.Second, clock.Real(), logger), controller, journal, fake, logger)
	handler := NewHandler(Dependencies{
		Readings:    gen,
		Runner:      runningFlag(true),
		Analyzer:    service,
		Environment: controller,
		Journal:     journal,
		Actuators:   actuators,
		Hub:         h,
		Clock:       fake,
		Logger:      logger,
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return fixture{gen: gen, hub: h, controller: controller, journal: journal, mux: mux}
}

func (f fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestWatchDataBeforeFirstTickIsDefault(t *testing.T) {
	f := newFixture(t, classifier.RuleClassifier{}, nil)

	rr := f.do(t, http.MethodGet, "/api/watch-data", "")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[domain.Reading](t, rr)
	require.Equal(t, 70, got.HeartRate)
	require.Equal(t, 98, got.BloodOxygen)
	require.Equal(t, 50, got.StressLevel)
}

func TestWatchHistoryOldestFirst(t *testing.T) {
	f := newFixture(t, classifier.RuleClassifier{}, nil)
	for i := 0; i < 7; i++ {
		f.gen.Tick()
	}

	rr := f.do(t, http.MethodGet, "/api/watch-data/history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[HistoryResponse](t, rr)
	require.Len(t, got.Readings, 5)
	for i := 1; i < len(got.Readings); i++ {
		require.True(t, got.Readings[i].Timestamp.After(got.Readings[i-1].Timestamp))
	}
	require.Equal(t, f.gen.Current().Timestamp.UTC(), got.Readings[4].Timestamp.UTC())
}

func TestAnalyzeAppliesAndJournals(t *testing.T) {
	f := newFixture(t, classifier.RuleClassifier{}, nil)
	f.gen.Tick()

	rr := f.do(t, http.MethodPost, "/api/analyze", `{"userInput":"feeling calm and rested"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	got := decode[analysis.Result](t, rr)
	require.Equal(t, "rules", got.Classification.Source)
	require.Equal(t, got.Classification.State, got.Settings.State)
	require.Equal(t, f.controller.Latest().State, got.Settings.State)
	require.Len(t, got.Settings.Music.Tracks, 3)

	entries, _, err := f.journal.Recent(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "feeling calm and rested", entries[0].Annotation)
}

func TestAnalyzeClassifiesSuppliedReading(t *testing.T) {
	f := newFixture(t, classifier.RuleClassifier{}, nil)
	generated := f.gen.Tick()

	rr := f.do(t, http.MethodPost, "/api/analyze",
		`{"annotation":"deadline tonight","reading":{"heartRate":250,"bloodOxygen":97,"stressLevel":88,"activity":20,"timestamp":"2026-03-03T08:30:00Z"}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	got := decode[analysis.Result](t, rr)
	require.Equal(t, domain.MaxHeartRate, got.Reading.HeartRate)
	require.Equal(t, 88, got.Reading.StressLevel)
	require.Equal(t, 97, got.Reading.BloodOxygen)
	require.Equal(t, time.Date(2026, time.March, 3, 8, 30, 0, 0, time.UTC), got.Reading.Timestamp.UTC())
	require.Equal(t, domain.StateStressed, got.Classification.State)
	require.Equal(t, generated, f.gen.Current())

	entries, _, err := f.journal.Recent(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Reading)
	require.Equal(t, domain.MaxHeartRate, entries[0].Reading.HeartRate)
	require.Equal(t, 88, entries[0].Reading.StressLevel)
}

func TestAnalyzeClassifierFailureReturnsReading(t *testing.T) {
	f := newFixture(t, failingClassifier{}, nil)
	reading := f.gen.Tick()

	rr := f.do(t, http.MethodPost, "/api/analyze", "")
	require.Equal(t, http.StatusBadGateway, rr.Code)

	got := decode[AnalyzeFailure](t, rr)
	require.Equal(t, "classifier_unavailable", got.Type)
	require.Equal(t, reading.HeartRate, got.Reading.HeartRate)
	require.Equal(t, actuation.DefaultSettings().State, f.controller.Latest().State)
}

func TestAnalyzeRejectsMalformedBody(t *testing.T) {
	f := newFixture(t, classifier.RuleClassifier{}, nil)

	rr := f.do(t, http.MethodPost, "/api/analyze", `{"annotation":`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/analyze", "")
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestEnvironmentUpdate(t *testing.T) {
	f := newFixture(t, classifier.RuleClassifier{}, nil)

	rr := f.do(t, http.MethodPost, "/api/environment", `{"mentalState":"relaxed","confidence":0.9,"analysis":{"reasoning":"steady","suggestedActions":["read"]}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got := decode[EnvironmentResponse](t, rr)
	require.Equal(t, "success", got.Status)
	require.Equal(t, domain.StateRelaxed, got.Settings.State)
	require.Equal(t, 74, got.Settings.Temperature)
	require.Equal(t, "upbeat", got.Settings.Music.Genre)

	rr = f.do(t, http.MethodGet, "/api/environment", "")
	require.Equal(t, http.StatusOK, rr.Code)
	latest := decode[domain.ActuationSettings](t, rr)
	require.Equal(t, domain.StateRelaxed, latest.State)

	rr = f.do(t, http.MethodGet, "/health/environment", "")
	require.Equal(t, http.StatusOK, rr.Code)
	health := decode[HealthResponse](t, rr)
	require.Equal(t, domain.StateRelaxed, health.MentalState)
}

func TestEnvironmentUpdateRequiresState(t *testing.T) {
	f := newFixture(t, classifier.RuleClassifier{}, nil)

	rr := f.do(t, http.MethodPost, "/api/environment", `{"confidence":0.4}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	got := decode[map[string]string](t, rr)
	require.Equal(t, "validation_failed", got["type"])
	require.Equal(t, domain.StateNeutral, f.controller.Latest().State)
}

func TestEnvironmentUnknownStateAppliedAsNeutral(t *testing.T) {
	f := newFixture(t, classifier.RuleClassifier{}, nil)

	rr := f.do(t, http.MethodPost, "/api/environment", `{"mentalState":"elated"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[EnvironmentResponse](t, rr)
	require.Equal(t, domain.StateNeutral, got.Settings.State)
	require.Equal(t, 73, got.Settings.Temperature)
}

func TestEnvironmentHistoryPaging(t *testing.T) {
	f := newFixture(t, classifier.RuleClassifier{}, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.journal.Record(context.Background(), persistence.Entry{
			ID:         fmt.Sprintf("entry-%d", i),
			State:      domain.StateNeutral,
			Source:     persistence.SourceManual,
			RecordedAt: epoch.Add(time.Duration(i) * time.Minute),
		}))
	}

	rr := f.do(t, http.MethodGet, "/api/environment/history?limit=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[JournalResponse](t, rr)
	require.Len(t, page.Items, 2)
	require.Equal(t, "entry-2", page.Items[0].ID)
	require.NotEmpty(t, page.NextCursor)

	rr = f.do(t, http.MethodGet, "/api/environment/history?limit=2&cursor="+page.NextCursor, "")
	require.Equal(t, http.StatusOK, rr.Code)
	page = decode[JournalResponse](t, rr)
	require.Len(t, page.Items, 1)
	require.Equal(t, "entry-0", page.Items[0].ID)
	require.Empty(t, page.NextCursor)

	rr = f.do(t, http.MethodGet, "/api/environment/history?cursor=@@@", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestActuatorStatus(t *testing.T) {
	applied := epoch
	f := newFixture(t, classifier.RuleClassifier{}, stubActuators{
		{Name: "kafka", Connected: false, LastError: "broker down"},
		{Name: "mqtt", Connected: true, LastAppliedAt: &applied},
	})

	rr := f.do(t, http.MethodGet, "/api/hue/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[ActuatorStatusResponse](t, rr)
	require.True(t, got.Connected)
	require.Len(t, got.Sinks, 2)

	empty := newFixture(t, classifier.RuleClassifier{}, nil)
	rr = empty.do(t, http.MethodGet, "/api/hue/status", "")
	got = decode[ActuatorStatusResponse](t, rr)
	require.False(t, got.Connected)
	require.Empty(t, got.Sinks)
}

func TestStatusReportsChannels(t *testing.T) {
	f := newFixture(t, classifier.RuleClassifier{}, nil)
	f.gen.Tick()

	rr := f.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[StatusResponse](t, rr)
	require.Equal(t, map[string]int{hub.ChannelTelemetry: 0, hub.ChannelActuation: 0}, got.Channels)
	require.True(t, got.GeneratorRunning)
	require.NotNil(t, got.LatestReading)
	require.True(t, got.Timestamp.Equal(epoch))

	rr = f.do(t, http.MethodGet, "/health/watch", "")
	require.Equal(t, http.StatusOK, rr.Code)
	health := decode[HealthResponse](t, rr)
	require.Equal(t, "healthy", health.Status)
	require.NotNil(t, health.LastData)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, classifier.RuleClassifier{}, nil)
	rr := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}
