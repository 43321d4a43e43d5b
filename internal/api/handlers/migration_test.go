package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/omniaweb/hnmigrate/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testExport = `{
	"CHANNELS": [{"name":"cam 1","serviceGuid":"cam-old"}],
	"MAPPING": {"services":[
		{"serviceGuid":"cam-old","serviceType":"HypernodeCameraService","serviceName":"Cameras"},
		{"serviceGuid":"rec-old","serviceType":"HypernodeRecordingService","serviceName":"Rec"}
	]},
	"RECORDINGS": {"HypernodeRecordingService":"rec-old"},
	"EXPORTED_AT": "2024-05-01T10:00:00Z"
}`

const testMapping = `{"services":[
	{"serviceGuid":"cam-new","serviceType":"HypernodeCameraService"},
	{"serviceGuid":"rec-a","serviceType":"HypernodeRecordingService","serviceName":"Other"},
	{"serviceGuid":"rec-b","serviceType":"HypernodeRecordingService","serviceName":"Spare"}
]}`

func setupMigrationTestRouter(t *testing.T) (*gin.Engine, *metrics.PrometheusMetrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	r := gin.New()
	NewMigrationHandler(m, zerolog.Nop()).RegisterRoutes(r.Group("/api/v1"))
	return r, m
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMigrationHandler_Plan(t *testing.T) {
	r, _ := setupMigrationTestRouter(t)

	w := postJSON(r, "/api/v1/plan", `{"export":`+testExport+`,"mapping":`+testMapping+`}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		OldServices  []map[string]string `json:"old_services"`
		Associations []struct {
			Old struct {
				ID string `json:"serviceGuid"`
			} `json:"old"`
			Selected string `json:"selected"`
			Origin   string `json:"origin"`
		} `json:"associations"`
		Complete   bool                `json:"complete"`
		Unresolved []map[string]string `json:"unresolved"`
		Toggleable []string            `json:"toggleable"`
		Selected   []string            `json:"selected"`
		Problems   []string            `json:"problems"`
		Summary    struct {
			Mapping []string `json:"mapping"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Len(t, resp.OldServices, 2)
	require.Len(t, resp.Associations, 2)
	assert.Equal(t, "cam-old", resp.Associations[0].Old.ID)
	assert.Equal(t, "cam-new", resp.Associations[0].Selected)
	assert.Equal(t, "count", resp.Associations[0].Origin)
	assert.Empty(t, resp.Associations[1].Selected)
	assert.False(t, resp.Complete)
	require.Len(t, resp.Unresolved, 1)
	assert.Equal(t, "rec-old", resp.Unresolved[0]["serviceGuid"])
	assert.Equal(t, []string{"CHANNELS", "RECORDINGS"}, resp.Toggleable)
	assert.Equal(t, []string{"CHANNELS", "MAPPING", "RECORDINGS", "EXPORTED_AT"}, resp.Selected)
	assert.Equal(t, []string{"1 services have no association"}, resp.Problems)
	assert.Len(t, resp.Summary.Mapping, 2)
}

func TestMigrationHandler_PlanWithoutMapping(t *testing.T) {
	r, _ := setupMigrationTestRouter(t)

	w := postJSON(r, "/api/v1/plan", `{"export":`+testExport+`}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp PlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Associations)
	assert.Empty(t, resp.NewServices)
	assert.Equal(t, []string{"old and new mappings are both required"}, resp.Problems)
}

func TestMigrationHandler_BadRequests(t *testing.T) {
	r, _ := setupMigrationTestRouter(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "plan invalid json", path: "/api/v1/plan", body: `{`},
		{name: "plan without export", path: "/api/v1/plan", body: `{"mapping":{}}`},
		{name: "rewrite without export", path: "/api/v1/rewrite", body: `{}`},
		{name: "rewrite unknown section", path: "/api/v1/rewrite", body: `{"export":` + testExport + `,"mapping":` + testMapping + `,"sections":["USERS"]}`},
		{name: "rewrite type mismatch", path: "/api/v1/rewrite", body: `{"export":` + testExport + `,"mapping":` + testMapping + `,"associations":{"rec-old":"cam-new"}}`},
		{name: "rewrite type missing fields", path: "/api/v1/rewrite/type", body: `{"document":{}}`},
		{name: "rewrite services without mapping", path: "/api/v1/rewrite/services", body: `{"document":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(r, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestMigrationHandler_Rewrite(t *testing.T) {
	r, m := setupMigrationTestRouter(t)

	w := postJSON(r, "/api/v1/rewrite", `{
		"export":`+testExport+`,
		"mapping":`+testMapping+`,
		"associations":{"rec-old":"rec-a"}
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Body   map[string]json.RawMessage `json:"body"`
		Result struct {
			Replacements int      `json:"replacements"`
			Unmatched    []string `json:"unmatched"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.JSONEq(t, `[{"name":"cam 1","serviceGuid":"cam-new"}]`, string(resp.Body["CHANNELS"]))
	assert.JSONEq(t, `{"HypernodeRecordingService":"rec-a"}`, string(resp.Body["RECORDINGS"]))
	assert.Equal(t, 4, resp.Result.Replacements)
	assert.Empty(t, resp.Result.Unmatched)

	var metric dto.Metric
	require.NoError(t, m.RewriteReplacements.Write(&metric))
	assert.Equal(t, float64(4), metric.GetCounter().GetValue())
}

func TestMigrationHandler_RewriteSections(t *testing.T) {
	r, _ := setupMigrationTestRouter(t)

	w := postJSON(r, "/api/v1/rewrite", `{
		"export":`+testExport+`,
		"mapping":`+testMapping+`,
		"associations":{"rec-old":"rec-b"},
		"sections":["channels"]
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Body map[string]json.RawMessage `json:"body"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Body, "CHANNELS")
	assert.Contains(t, resp.Body, "MAPPING")
	assert.NotContains(t, resp.Body, "RECORDINGS")
}

func TestMigrationHandler_RewriteNotReady(t *testing.T) {
	r, _ := setupMigrationTestRouter(t)

	w := postJSON(r, "/api/v1/rewrite", `{"export":`+testExport+`,"mapping":`+testMapping+`}`)
	require.Equal(t, http.StatusConflict, w.Code)

	var resp struct {
		Error      string              `json:"error"`
		Reasons    []string            `json:"reasons"`
		Unresolved []map[string]string `json:"unresolved"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "import not ready", resp.Error)
	assert.Equal(t, []string{"1 services have no association"}, resp.Reasons)
	require.Len(t, resp.Unresolved, 1)
	assert.Equal(t, "rec-old", resp.Unresolved[0]["serviceGuid"])
}

func TestMigrationHandler_RewriteClearsAutomaticChoice(t *testing.T) {
	r, _ := setupMigrationTestRouter(t)

	w := postJSON(r, "/api/v1/rewrite", `{
		"export":`+testExport+`,
		"mapping":`+testMapping+`,
		"associations":{"rec-old":"rec-a","cam-old":""}
	}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMigrationHandler_RewriteType(t *testing.T) {
	r, m := setupMigrationTestRouter(t)

	tests := []struct {
		name         string
		body         string
		wantFallback bool
		wantDoc      string
	}{
		{
			name:    "typed reference",
			body:    `{"document":{"a":{"serviceType":"cam","serviceGuid":"x"}},"service_type":"cam","new_id":"y"}`,
			wantDoc: `{"a":{"serviceType":"cam","serviceGuid":"y"}}`,
		},
		{
			name:         "fallback",
			body:         `{"document":{"a":1},"service_type":"cam","new_id":"y"}`,
			wantFallback: true,
			wantDoc:      `{"a":1,"serviceGuids":{"cam":"y"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(r, "/api/v1/rewrite/type", tt.body)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var resp struct {
				Document json.RawMessage `json:"document"`
				Fallback bool            `json:"fallback"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantFallback, resp.Fallback)
			assert.JSONEq(t, tt.wantDoc, string(resp.Document))
		})
	}

	var metric dto.Metric
	require.NoError(t, m.RewriteFallbacks.WithLabelValues("cam").Write(&metric))
	assert.Equal(t, float64(1), metric.GetCounter().GetValue())
}

func TestMigrationHandler_RewriteTypePrecondition(t *testing.T) {
	r, _ := setupMigrationTestRouter(t)

	w := postJSON(r, "/api/v1/rewrite/type", `{"document":[1,2],"service_type":"cam","new_id":"y"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = postJSON(r, "/api/v1/rewrite/type", `{"service_type":"cam","new_id":"y"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestMigrationHandler_RewriteServices(t *testing.T) {
	r, _ := setupMigrationTestRouter(t)

	w := postJSON(r, "/api/v1/rewrite/services", `{
		"document":{"cam":{"serviceType":"HypernodeCameraService","serviceGuid":"old"}},
		"mapping":`+testMapping+`
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp RewriteServicesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// The first recording service lands in the fallback map, which the
	// second then finds as a keyed reference.
	assert.Equal(t, []string{"HypernodeRecordingService"}, resp.Fallbacks)
	camGUID, _ := resp.Document.Lookup("cam", "serviceGuid").Str()
	assert.Equal(t, "cam-new", camGUID)
	recGUID, _ := resp.Document.Lookup("serviceGuids", "HypernodeRecordingService").Str()
	assert.Equal(t, "rec-b", recGUID)
}
