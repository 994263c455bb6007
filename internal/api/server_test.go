package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/cascade/internal/buffer"
	"github.com/talgya/cascade/internal/cascade"
	"github.com/talgya/cascade/internal/params"
	"github.com/talgya/cascade/internal/persistence"
)

func newTestServer(t *testing.T, withDB bool) (*Server, *httptest.Server) {
	return newTestServerWithKey(t, withDB, "secret")
}

func newTestServerWithKey(t *testing.T, withDB bool, adminKey string) (*Server, *httptest.Server) {
	t.Helper()
	e, err := cascade.NewEngine(params.Default())
	require.NoError(t, err)

	s := &Server{
		Engine:     e,
		Provider:   buffer.Heap{},
		AdminKey:   adminKey,
		RunLimiter: NewRateLimiter(2, time.Hour),
	}
	if withDB {
		db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		s.DB = db
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postRun(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/api/v1/runs", nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestStatus(t *testing.T) {
	_, ts := newTestServer(t, false)
	var status map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/status", &status))
	assert.Equal(t, float64(33), status["layers"])
	assert.Equal(t, "layer", status["phase"])
	assert.Equal(t, float64(4096*33), status["buffer_size"])
	assert.Equal(t, "132 KiB", status["buffer_human"])
	assert.Equal(t, false, status["history"])
}

func TestSeriesAndVerdict(t *testing.T) {
	_, ts := newTestServer(t, false)

	var series cascade.EnergySeries
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/series", &series))
	assert.Len(t, series.Values, 33)
	assert.InDelta(t, 21.2064, series.Total, 1e-4)

	var v cascade.CascadeVerdict
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/verdict", &v))
	assert.True(t, v.Achieved)
	assert.Len(t, v.LayerEffects, 33)
}

func TestSignatures(t *testing.T) {
	_, ts := newTestServer(t, false)
	var sigs []signatureEntry
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/signatures", &sigs))
	require.Len(t, sigs, 33)
	assert.Equal(t, "CTT-L01:eeccd3bm:0.970250", sigs[1].Text)
	assert.Equal(t, "9a9a9cc99f9cccce", sigs[0].DigestHex)
}

func TestRecord(t *testing.T) {
	s, ts := newTestServer(t, false)

	var body struct {
		Layer  int            `json:"layer"`
		Hex    string         `json:"hex"`
		Size   int            `json:"size"`
		Fields cascade.Record `json:"fields"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/record/2", &body))
	want, err := s.Engine.Record(2)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want), body.Hex)
	assert.Equal(t, cascade.RecordSize, body.Size)
	assert.Equal(t, uint8(59), body.Fields.Opcode)
	assert.Equal(t, uint16(204), body.Fields.Signature)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/v1/record/33", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/v1/record/x", nil))
}

func TestRuns_DisabledWithoutDB(t *testing.T) {
	_, ts := newTestServer(t, false)
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/runs", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/run/abc", nil))
}

func TestCreateRun(t *testing.T) {
	_, ts := newTestServer(t, true)

	resp := postRun(t, ts.URL, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postRun(t, ts.URL, "secret")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID     string `json:"id"`
		Stored bool   `json:"stored"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.True(t, created.Stored)

	var runs []persistence.RunRow
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/runs?limit=5", &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, created.ID, runs[0].ID)

	var stored persistence.StoredRun
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/run/"+created.ID, &stored))
	assert.Len(t, stored.Records, 33)
	assert.Len(t, stored.Signatures, 33)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/run/unknown", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/v1/runs?limit=0", nil))
}

func TestCreateRun_RateLimited(t *testing.T) {
	_, ts := newTestServer(t, false)
	for i := 0; i < 2; i++ {
		resp := postRun(t, ts.URL, "secret")
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp := postRun(t, ts.URL, "secret")
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestCreateRun_DisabledWithoutKey(t *testing.T) {
	_, ts := newTestServerWithKey(t, false, "")
	resp := postRun(t, ts.URL, "anything")
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
