package app_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verilab/verilab/internal/adapter/httpserver"
	lismock "github.com/verilab/verilab/internal/adapter/lis/mock"
	"github.com/verilab/verilab/internal/app"
	"github.com/verilab/verilab/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		AppEnv:                 "test",
		SecretKey:              "router-test-secret",
		JWTAlgorithm:           "HS256",
		TokenLifetime:          time.Hour,
		RateLimitPerMin:        1000,
		EnableAutoVerification: true,
		EnableDeltaCheck:       true,
		EnableReviewEscalation: true,
		RetryMaxRetries:        3,
	}
}

// newTestAPI boots a full in-memory stack behind the real router.
func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := testConfig()
	repos := app.BuildRepos(nil)
	svcs := app.BuildServices(cfg, repos, lismock.New())
	srv := httpserver.NewServer(cfg,
		svcs.Identity, svcs.Samples, svcs.Results, svcs.Verify,
		svcs.Review, svcs.LIS, svcs.Instruments, svcs.Settings,
		app.BuildReadinessCheck(nil))
	ts := httptest.NewServer(app.BuildRouter(cfg, srv))
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// bootstrap creates a tenant with its admin and returns an admin token.
func bootstrap(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/tenants/with-admin", "", map[string]any{
		"name":            "Acme Diagnostics",
		"slug":            "acme",
		"admin_email":     "admin@acme.test",
		"admin_full_name": "Admin",
		"admin_password":  "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"tenant_slug": "acme",
		"email":       "admin@acme.test",
		"password":    "correct horse",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func createUserToken(t *testing.T, ts *httptest.Server, adminToken, email, role string) string {
	t.Helper()
	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/users", adminToken, map[string]any{
		"email":     email,
		"full_name": "Test User",
		"password":  "long enough pw",
		"role":      role,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"tenant_slug": "acme",
		"email":       email,
		"password":    "long enough pw",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body["access_token"].(string)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	ts := newTestAPI(t)

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, body := doJSON(t, ts, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Equal(t, "ready", body["status"])
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()
	ts := newTestAPI(t)
	token := bootstrap(t, ts)

	resp, body := doJSON(t, ts, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "admin@acme.test", body["email"])

	resp, body = doJSON(t, ts, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["error"])

	resp, body = doJSON(t, ts, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"tenant_slug": "acme", "email": "admin@acme.test", "password": "wrong password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestSecurityAndRequestIDHeaders(t *testing.T) {
	t.Parallel()
	ts := newTestAPI(t)
	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestSampleAndResultFlow(t *testing.T) {
	t.Parallel()
	ts := newTestAPI(t)
	token := bootstrap(t, ts)

	// Settings first so the created result can auto-verify.
	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/verification", token, map[string]any{
		"test_code":            "GLU",
		"reference_range_low":  70.0,
		"reference_range_high": 100.0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, sample := doJSON(t, ts, http.MethodPost, "/api/v1/samples", token, map[string]any{
		"external_lis_id": "S-100",
		"patient_id":      "P-1",
		"specimen_type":   "serum",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sampleID := sample["id"].(string)

	resp, result := doJSON(t, ts, http.MethodPost, "/api/v1/results", token, map[string]any{
		"sample_id": sampleID,
		"test_code": "GLU",
		"value":     "85",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "verified", result["verification_status"])
	assert.Equal(t, "auto", result["verification_method"])

	resp, body := doJSON(t, ts, http.MethodGet, "/api/v1/samples/"+sampleID+"/results", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["results"], 1)

	resp, body = doJSON(t, ts, http.MethodGet, "/api/v1/samples/missing-id", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])
}

func TestSampleValidation(t *testing.T) {
	t.Parallel()
	ts := newTestAPI(t)
	token := bootstrap(t, ts)

	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/samples", token, map[string]any{
		"patient_id": "P-1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", body["error"])
}

func TestRoleGuards(t *testing.T) {
	t.Parallel()
	ts := newTestAPI(t)
	adminToken := bootstrap(t, ts)
	techToken := createUserToken(t, ts, adminToken, "tech@acme.test", "technician")
	reviewerToken := createUserToken(t, ts, adminToken, "rev@acme.test", "reviewer")

	// Settings writes are admin-only; reads are open to any authenticated user.
	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/verification", techToken, map[string]any{
		"test_code": "NA",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", body["error"])

	resp, _ = doJSON(t, ts, http.MethodGet, "/api/v1/verification", techToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Review queue needs reviewer or higher.
	resp, _ = doJSON(t, ts, http.MethodGet, "/api/v1/reviews/queue", techToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = doJSON(t, ts, http.MethodGet, "/api/v1/reviews/queue", reviewerToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRuleToggleEndpoint(t *testing.T) {
	t.Parallel()
	ts := newTestAPI(t)
	token := bootstrap(t, ts)

	resp, body := doJSON(t, ts, http.MethodGet, "/api/v1/verification/rules", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["rules"], 4)

	resp, rule := doJSON(t, ts, http.MethodPut, "/api/v1/verification/rules", token, map[string]any{
		"rule_type": "delta_check",
		"enabled":   true,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, rule["enabled"])

	resp, body = doJSON(t, ts, http.MethodPut, "/api/v1/verification/rules", token, map[string]any{
		"rule_type": "sigma_check",
		"enabled":   true,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", body["error"])
}

func TestInstrumentEndpoints(t *testing.T) {
	t.Parallel()
	ts := newTestAPI(t)
	token := bootstrap(t, ts)

	resp, inst := doJSON(t, ts, http.MethodPost, "/api/v1/instruments/register", token, map[string]any{
		"name":            "Sysmex XN-1000",
		"instrument_type": "hematology",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	instID := inst["id"].(string)
	instToken := inst["api_token"].(string)
	require.GreaterOrEqual(t, len(instToken), 43)
	assert.Equal(t, "inactive", inst["status"])

	// Listing never exposes the token.
	resp, body := doJSON(t, ts, http.MethodGet, "/api/v1/instruments", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := body["instruments"].([]any)[0].(map[string]any)
	_, hasToken := listed["api_token"]
	assert.False(t, hasToken)

	// Inactive instruments cannot talk to the host.
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/instruments/query-host", bytes.NewReader(nil))
	require.NoError(t, err)
	req.Header.Set("X-Instrument-Token", instToken)
	qresp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer qresp.Body.Close()
	assert.Equal(t, http.StatusForbidden, qresp.StatusCode)

	resp, _ = doJSON(t, ts, http.MethodPut, "/api/v1/instruments/"+instID, token, map[string]any{
		"name": "Sysmex XN-1000", "status": "active",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, ts.URL+"/api/v1/instruments/query-host", bytes.NewReader(nil))
	require.NoError(t, err)
	req.Header.Set("X-Instrument-Token", instToken)
	qresp2, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer qresp2.Body.Close()
	require.Equal(t, http.StatusOK, qresp2.StatusCode)
	var hostResp map[string]any
	require.NoError(t, json.NewDecoder(qresp2.Body).Decode(&hostResp))
	assert.NotNil(t, hostResp["orders"])
	assert.NotEmpty(t, hostResp["query_timestamp"])

	// Bad token is a 401 regardless of instrument state.
	req, err = http.NewRequest(http.MethodPost, ts.URL+"/api/v1/instruments/query-host", bytes.NewReader(nil))
	require.NoError(t, err)
	req.Header.Set("X-Instrument-Token", "nope")
	qresp3, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer qresp3.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, qresp3.StatusCode)
}

func TestInstrumentSubmitResult(t *testing.T) {
	t.Parallel()
	ts := newTestAPI(t)
	token := bootstrap(t, ts)

	resp, inst := doJSON(t, ts, http.MethodPost, "/api/v1/instruments/register", token, map[string]any{
		"name": "Cobas c501",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	instID := inst["id"].(string)
	instToken := inst["api_token"].(string)
	resp, _ = doJSON(t, ts, http.MethodPut, "/api/v1/instruments/"+instID, token, map[string]any{
		"name": "Cobas c501", "status": "active",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, sample := doJSON(t, ts, http.MethodPost, "/api/v1/samples", token, map[string]any{
		"external_lis_id": "S-200",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	payload := map[string]any{
		"external_instrument_result_id": "IR-1",
		"sample_barcode":                "S-200",
		"test_code":                     "GLU",
		"value":                         "85",
	}
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/instruments/results", bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("X-Instrument-Token", instToken)
	sresp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer sresp.Body.Close()
	require.Equal(t, http.StatusAccepted, sresp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(sresp.Body).Decode(&out))
	assert.NotEmpty(t, out["result_id"])

	resp, body := doJSON(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/samples/%s/results", sample["id"]), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["results"], 1)
}

func TestLISConfigEndpoints(t *testing.T) {
	t.Parallel()
	ts := newTestAPI(t)
	token := bootstrap(t, ts)

	resp, body := doJSON(t, ts, http.MethodGet, "/api/v1/lis/config", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])

	resp, cfg := doJSON(t, ts, http.MethodPost, "/api/v1/lis/config", token, map[string]any{
		"lis_type":          "epic",
		"integration_model": "push",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	key, _ := cfg["tenant_api_key"].(string)
	assert.GreaterOrEqual(t, len(key), 43)

	resp, cfg = doJSON(t, ts, http.MethodPut, "/api/v1/lis/config/upload-settings", token, map[string]any{
		"auto_upload_enabled":     true,
		"upload_verified_results": true,
		"upload_batch_size":       25,
		"upload_rate_limit":       30,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(25), cfg["upload_batch_size"])

	resp, body = doJSON(t, ts, http.MethodPut, "/api/v1/lis/config/upload-settings", token, map[string]any{
		"upload_batch_size": 0,
		"upload_rate_limit": 30,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", body["error"])

	resp, rotated := doJSON(t, ts, http.MethodPost, "/api/v1/lis/config/regenerate-api-key", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, key, rotated["tenant_api_key"])
}

func TestReviewEndpoints(t *testing.T) {
	t.Parallel()
	ts := newTestAPI(t)
	token := bootstrap(t, ts)

	// Flagged settings so the result needs review.
	resp, _ := doJSON(t, ts, http.MethodPost, "/api/v1/verification", token, map[string]any{
		"test_code":            "GLU",
		"reference_range_low":  70.0,
		"reference_range_high": 100.0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, sample := doJSON(t, ts, http.MethodPost, "/api/v1/samples", token, map[string]any{
		"external_lis_id": "S-300",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sampleID := sample["id"].(string)

	resp, result := doJSON(t, ts, http.MethodPost, "/api/v1/results", token, map[string]any{
		"sample_id": sampleID,
		"test_code": "GLU",
		"value":     "150",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "needs_review", result["verification_status"])

	resp, body := doJSON(t, ts, http.MethodGet, "/api/v1/reviews/queue", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reviews := body["reviews"].([]any)
	require.Len(t, reviews, 1)
	reviewID := reviews[0].(map[string]any)["id"].(string)

	// Rejecting without comments is refused.
	resp, body = doJSON(t, ts, http.MethodPost, "/api/v1/reviews/"+reviewID+"/reject", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", body["error"])

	resp, rev := doJSON(t, ts, http.MethodPost, "/api/v1/reviews/"+reviewID+"/approve", token, map[string]any{
		"comments": "checked against prior run",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "approved", rev["state"])

	// The review is terminal now.
	resp, body = doJSON(t, ts, http.MethodPost, "/api/v1/reviews/"+reviewID+"/approve", token, map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "immutable", body["error"])

	resp, got := doJSON(t, ts, http.MethodGet, "/api/v1/samples/"+sampleID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "verified", got["status"])
}

func TestVerifyBatchEndpoint(t *testing.T) {
	t.Parallel()
	ts := newTestAPI(t)
	token := bootstrap(t, ts)

	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/results/verify-batch", token, map[string]any{
		"result_ids": []string{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", body["error"])
}
