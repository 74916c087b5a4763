package observ

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWritesEventAndTimestamp(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Log("cycle_done", map[string]any{"symbol": "AAPL", "shares": 3})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "cycle_done", line["event"])
	assert.Equal(t, "AAPL", line["symbol"])
	assert.EqualValues(t, 3, line["shares"])
	assert.NotEmpty(t, line["ts"])
}

func TestErrorCarriesCause(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Error("fetch_failed", errors.New("boom"), nil)

	out := buf.String()
	assert.True(t, strings.Contains(out, `"error":"boom"`), out)
	assert.True(t, strings.Contains(out, `"level":"error"`), out)
}

type fixedStatus struct{}

func (fixedStatus) StatusSnapshot() any {
	return map[string]any{"status": "running", "cycles_completed": 7}
}

func TestHealthHandlerIncludesWorkerSnapshot(t *testing.T) {
	srv := httptest.NewServer(NewMux(fixedStatus{}))
	defer srv.Close()

	for _, path := range []string{"/health", "/healthz", "/status"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + path)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body struct {
				Status string         `json:"status"`
				Worker map[string]any `json:"worker"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, "healthy", body.Status)
			assert.Equal(t, "running", body.Worker["status"])
			assert.EqualValues(t, 7, body.Worker["cycles_completed"])
		})
	}
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	RecordFetch("tiingo", "success")
	srv := httptest.NewServer(NewMux(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), `fetch_attempts_total{provider="tiingo",result="success"}`)
}
