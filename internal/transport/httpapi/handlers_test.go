package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
)

type fakeRunner struct {
	calls   int
	lastLen int
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, records []domain.TradeRecord) ([]domain.AnomalyRecord, error) {
	f.calls++
	f.lastLen = len(records)
	if f.err != nil {
		return nil, f.err
	}
	anomalies := make([]domain.AnomalyRecord, 0, len(records))
	for _, rec := range records {
		anomalies = append(anomalies, domain.AnomalyRecord{TradeRecord: rec, Anomaly: "Yes"})
	}
	return anomalies, nil
}

func newTestServer(t *testing.T, runner Runner) *httptest.Server {
	t.Helper()
	srv := NewServer(DefaultServerConfig(), runner)
	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return ts
}

func sampleRecord(id int64) domain.TradeRecord {
	return domain.TradeRecord{
		TradeID:            id,
		RiskDate:           time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		DeskName:           "RATES",
		QuantityDifference: 42,
		ImpactPrice:        1.5,
		ImpactQuantity:     3,
		Comment:            "late booking",
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeRunner{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestRealtimeAnomaly(t *testing.T) {
	runner := &fakeRunner{}
	ts := newTestServer(t, runner)

	payload, err := json.Marshal(sampleRecord(101))
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/realtime_anomaly", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body anomalyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Anomalies, 1)
	assert.Equal(t, int64(101), body.Anomalies[0].TradeID)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, 1, runner.lastLen)
}

func TestRealtimeAnomalyBadPayload(t *testing.T) {
	runner := &fakeRunner{}
	ts := newTestServer(t, runner)

	resp, err := http.Post(ts.URL+"/realtime_anomaly", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, runner.calls)
}

func TestBatchAnomaly(t *testing.T) {
	runner := &fakeRunner{}
	ts := newTestServer(t, runner)

	records := []domain.TradeRecord{sampleRecord(1), sampleRecord(2), sampleRecord(3)}
	payload, err := json.Marshal(records)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/batch_anomaly", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body anomalyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 3, body.Count)
	assert.Equal(t, 3, runner.lastLen)
}

func TestBatchAnomalyPipelineError(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("record 2: risk date missing")}
	ts := newTestServer(t, runner)

	payload, err := json.Marshal([]domain.TradeRecord{sampleRecord(1)})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/batch_anomaly", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "risk date missing")
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, &fakeRunner{})

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocketStream(t *testing.T) {
	runner := &fakeRunner{}
	ts := newTestServer(t, runner)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(sampleRecord(7)))

	var body anomalyResponse
	require.NoError(t, conn.ReadJSON(&body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Anomalies, 1)
	assert.Equal(t, int64(7), body.Anomalies[0].TradeID)

	// A second message reuses the same connection.
	require.NoError(t, conn.WriteJSON(sampleRecord(8)))
	require.NoError(t, conn.ReadJSON(&body))
	assert.Equal(t, int64(8), body.Anomalies[0].TradeID)
	assert.Equal(t, 2, runner.calls)
}

func TestWebsocketStreamPipelineError(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("feature build failed")}
	ts := newTestServer(t, runner)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(sampleRecord(7)))

	var body errorResponse
	require.NoError(t, conn.ReadJSON(&body))
	assert.Contains(t, body.Error, "feature build failed")
}
