package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RoundCompleted()
	m.RoundCompleted()
	m.AgentSelected("Coach", true)
	m.AgentSelected("Expert", false)
	m.AgentSelected("Expert", false)
	m.MessageAppended("Coach")
	m.Terminated("decision")
	m.RoundFailed("SELECTION")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rounds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Selections.WithLabelValues("Coach", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Selections.WithLabelValues("Expert", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues("Coach")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Terminations.WithLabelValues("decision")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("SELECTION")))
}

func TestMetricsHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveTurn("Coach", 120*time.Millisecond)
	m.ObserveLLM("azure", "ok", time.Second)
	m.ObserveLLM("azure", "RATE_LIMIT", time.Second)

	assert.Equal(t, 1, testutil.CollectAndCount(m.TurnDuration))
	assert.Equal(t, 2, testutil.CollectAndCount(m.LLMDuration))
}

func TestNewMetricsDoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RoundCompleted()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "maa_groupchat_rounds_total 1")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestServerLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	srv, err := Listen("127.0.0.1:0", reg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + srv.Addr() + "/metrics")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "maa_groupchat_rounds_total")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
