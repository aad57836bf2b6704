package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coglab/cognition-engine/pkg/agents"
	baselineagent "github.com/coglab/cognition-engine/pkg/agents/baseline"
	"github.com/coglab/cognition-engine/pkg/agents/causal"
	"github.com/coglab/cognition-engine/pkg/agents/code"
	"github.com/coglab/cognition-engine/pkg/agents/compliance"
	"github.com/coglab/cognition-engine/pkg/agents/forecast"
	"github.com/coglab/cognition-engine/pkg/agents/resource"
	"github.com/coglab/cognition-engine/pkg/agents/workflow"
	"github.com/coglab/cognition-engine/pkg/blackboard"
	"github.com/coglab/cognition-engine/pkg/config"
	"github.com/coglab/cognition-engine/pkg/coordinator"
	"github.com/coglab/cognition-engine/pkg/events"
	"github.com/coglab/cognition-engine/pkg/ingestion"
	"github.com/coglab/cognition-engine/pkg/query"
	"github.com/coglab/cognition-engine/pkg/scoring"
	"github.com/coglab/cognition-engine/pkg/store"
)

// startTestServer boots the full engine on an in-memory store and a
// random port, returning the base URL.
func startTestServer(t *testing.T) string {
	t.Helper()
	cfg, err := config.Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	mem := store.NewMemory()
	board := blackboard.New(mem, mem)
	pipeline := ingestion.New(cfg, mem, mem, mem, nil)

	phase1 := []agents.Agent{
		workflow.New(),
		resource.New(cfg.Resource),
		compliance.New(cfg.Policies),
		baselineagent.New(cfg.Baseline),
		code.New(),
	}
	connManager := events.NewConnectionManager()
	coord := coordinator.New(
		cfg, mem, board, phase1,
		forecast.New(),
		causal.New(cfg.Phase.CausalWindowSeconds),
		scoring.NewSeverityEngine(),
		scoring.NewRecommendationEngine(cfg),
		scoring.NewRiskIndexTracker(cfg.RiskWeights),
		events.NewPublisher(connManager),
	)

	server := NewServer(cfg, nil, pipeline, coord, board, query.New(mem), connManager)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.StartWithListener(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	return "http://" + ln.Addr().String()
}

func postJSON(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, data
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	if out != nil {
		require.NoError(t, json.Unmarshal(data, out))
	}
	return resp
}

func rawEventBody(key string, ts time.Time) map[string]any {
	return map[string]any{
		"idempotency_key": key,
		"type":            "ACCESS_WRITE",
		"actor":           "svc_bot",
		"resource":        "config",
		"timestamp":       ts.Format(time.RFC3339),
	}
}

func TestServer_IngestAndCycleFlow(t *testing.T) {
	base := startTestServer(t)
	now := time.Now().UTC()

	t.Run("observe event accepted", func(t *testing.T) {
		resp, body := postJSON(t, base+"/observe/event", rawEventBody("k-1", now))
		require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

		var accepted acceptedResponse
		require.NoError(t, json.Unmarshal(body, &accepted))
		assert.NotEmpty(t, accepted.EventID)
	})

	t.Run("duplicate returns conflict", func(t *testing.T) {
		resp, body := postJSON(t, base+"/observe/event", rawEventBody("k-1", now))
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		var q quarantineResponse
		require.NoError(t, json.Unmarshal(body, &q))
		assert.Equal(t, "DUPLICATE", string(q.ReasonCode))
	})

	t.Run("late event rejected", func(t *testing.T) {
		resp, body := postJSON(t, base+"/observe/event", rawEventBody("k-2", now.Add(-48*time.Hour)))
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var q quarantineResponse
		require.NoError(t, json.Unmarshal(body, &q))
		assert.Equal(t, "LATE_EVENT", string(q.ReasonCode))
	})

	t.Run("observe metric accepted", func(t *testing.T) {
		resp, _ := postJSON(t, base+"/observe/metric", map[string]any{
			"idempotency_key": "k-m1",
			"resource_id":     "vm_1",
			"metric_name":     "cpu_percent",
			"value":           95.0,
			"timestamp":       now.Format(time.RFC3339),
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("ingest status counts", func(t *testing.T) {
		var status struct {
			Accepted            int            `json:"accepted"`
			QuarantinedByReason map[string]int `json:"quarantined_by_reason"`
		}
		resp := getJSON(t, base+"/ingest/status", &status)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, status.Accepted)
		assert.Equal(t, 1, status.QuarantinedByReason["DUPLICATE"])
		assert.Equal(t, 1, status.QuarantinedByReason["LATE_EVENT"])
	})

	var cycleID string
	t.Run("trigger cycle", func(t *testing.T) {
		resp, body := postJSON(t, base+"/analysis/cycle", map[string]any{})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var summary struct {
			CycleID        string `json:"cycle_id"`
			PolicyHitCount int    `json:"policy_hit_count"`
			Degraded       bool   `json:"degraded"`
		}
		require.NoError(t, json.Unmarshal(body, &summary))
		assert.NotEmpty(t, summary.CycleID)
		assert.False(t, summary.Degraded)
		cycleID = summary.CycleID
	})

	t.Run("sealed cycle views", func(t *testing.T) {
		var section struct {
			CycleID  string `json:"cycle_id"`
			Degraded bool   `json:"degraded"`
			Items    []any  `json:"items"`
		}
		resp := getJSON(t, base+"/policy/violations", &section)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, cycleID, section.CycleID)

		resp = getJSON(t, base+"/anomalies", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp = getJSON(t, base+"/causal/links", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp = getJSON(t, base+"/recommendations", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp = getJSON(t, base+"/risk/current", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("risk index", func(t *testing.T) {
		var idx struct {
			RiskScore float64 `json:"risk_score"`
			Band      string  `json:"band"`
		}
		resp := getJSON(t, base+"/risk/index", &idx)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, idx.Band)
	})

	t.Run("audit payload verifies", func(t *testing.T) {
		resp, err := http.Get(base + "/audit/incident/" + cycleID)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "true", resp.Header.Get("X-Cycle-Verified"))

		var cycle struct {
			CycleID     string `json:"cycle_id"`
			CycleSHA256 string `json:"cycle_sha256"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&cycle))
		assert.Equal(t, cycleID, cycle.CycleID)
		assert.NotEmpty(t, cycle.CycleSHA256)
	})

	t.Run("audit timeline", func(t *testing.T) {
		var timeline struct {
			CycleID  string `json:"cycle_id"`
			Timeline []any  `json:"timeline"`
		}
		resp := getJSON(t, fmt.Sprintf("%s/audit/incident/%s/timeline", base, cycleID), &timeline)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, cycleID, timeline.CycleID)
	})

	t.Run("unknown cycle is 404", func(t *testing.T) {
		resp := getJSON(t, base+"/audit/incident/nope", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("query answers from sealed cycles", func(t *testing.T) {
		resp, body := postJSON(t, base+"/query", map[string]any{"question": "any policy violations?"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var answer struct {
			Intent      string  `json:"intent"`
			Confidence  float64 `json:"confidence"`
			Uncertainty string  `json:"uncertainty"`
		}
		require.NoError(t, json.Unmarshal(body, &answer))
		assert.Equal(t, "compliance", answer.Intent)
	})

	t.Run("query without question is 400", func(t *testing.T) {
		resp, _ := postJSON(t, base+"/query", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_Operational(t *testing.T) {
	base := startTestServer(t)

	resp := getJSON(t, base+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ready struct {
		Status string `json:"status"`
		Store  string `json:"store"`
	}
	resp = getJSON(t, base+"/readyz", &ready)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "memory", ready.Store)

	resp = getJSON(t, base+"/version", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("risk index before any cycle is 404", func(t *testing.T) {
		resp := getJSON(t, base+"/risk/index", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
