package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imthegoodboy/AI-Oracle/pkg/config"
	"github.com/imthegoodboy/AI-Oracle/pkg/datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	servingToken = "serving-secret"
	gatewayToken = "gateway-secret"
)

type testClient struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T) *testClient {
	config.ConfigGlobal = config.DefaultConfig()
	config.ConfigGlobal.DbSqlite = ":memory:"
	config.ConfigGlobal.ServingToken = servingToken
	config.ConfigGlobal.GatewayToken = gatewayToken
	config.ConfigGlobal.ReconcileIntervalSec = 0
	oracle, err := NewOracleServer("0", datastore.SQLite, gin.TestMode)
	require.NoError(t, err)
	t.Cleanup(func() { oracle.Close(time.Second) })
	return &testClient{t: t, handler: oracle.srv.Handler}
}

func (tc *testClient) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	tc.handler.ServeHTTP(w, req)
	return w
}

func (tc *testClient) decode(w *httptest.ResponseRecorder, out interface{}) {
	require.NoError(tc.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func as(user string) map[string]string {
	return map[string]string{"X-User-Id": user, "X-User-Name": user + " Labs", "X-Gateway-Token": gatewayToken}
}

func bearer(secret string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + secret}
}

func serving() map[string]string {
	return map[string]string{"X-Serving-Token": servingToken}
}

func TestHealthAndMetrics(t *testing.T) {
	tc := newTestServer(t)

	w := tc.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	tc.do(http.MethodGet, "/v1/models", "", nil)
	w = tc.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "oracle_http_request_duration_seconds")

	w = tc.do(http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogEndpoints(t *testing.T) {
	tc := newTestServer(t)

	w := tc.do(http.MethodGet, "/v1/models", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listings []map[string]interface{}
	tc.decode(w, &listings)
	require.NotEmpty(t, listings)
	assert.Equal(t, "gpt-4o-mini", listings[0]["id"])
	assert.Equal(t, "0.05", listings[0]["pricePerInference"])

	w = tc.do(http.MethodGet, "/v1/models?type=audio", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tc.decode(w, &listings)
	for _, l := range listings {
		assert.Equal(t, "audio", l["modelType"])
	}
	w = tc.do(http.MethodGet, "/v1/models?type=video", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = tc.do(http.MethodGet, "/v1/models/vision-lite", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = tc.do(http.MethodGet, "/v1/models/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// registration needs a provider
	listing := `{"id":"alpha","name":"Alpha","modelType":"text","pricePerInference":"0.2"}`
	w = tc.do(http.MethodPost, "/v1/models", listing, as("alice"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = tc.do(http.MethodPost, "/v1/providers", "", as("alice"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = tc.do(http.MethodPost, "/v1/providers", "", as("alice"))
	require.Equal(t, http.StatusOK, w.Code)

	w = tc.do(http.MethodPost, "/v1/models", listing, as("alice"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = tc.do(http.MethodPost, "/v1/models", listing, as("alice"))
	assert.Equal(t, http.StatusConflict, w.Code)
	w = tc.do(http.MethodPost, "/v1/models", `{"name":"B","modelType":"video","pricePerInference":1}`, as("alice"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = tc.do(http.MethodDelete, "/v1/models/alpha", "", as("bob"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = tc.do(http.MethodDelete, "/v1/models/alpha", "", as("alice"))
	assert.Equal(t, http.StatusOK, w.Code)
	w = tc.do(http.MethodPost, "/v1/requests", `{"modelId":"alpha"}`, as("dev"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKeyEndpoints(t *testing.T) {
	tc := newTestServer(t)

	w := tc.do(http.MethodPost, "/v1/keys", `{"name":"k"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var first map[string]interface{}
	for i, name := range []string{"k1", "k2", "k3"} {
		w = tc.do(http.MethodPost, "/v1/keys", `{"name":"`+name+`"}`, as("alice"))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		if i == 0 {
			tc.decode(w, &first)
		}
	}
	w = tc.do(http.MethodPost, "/v1/keys", `{"name":"k4"}`, as("alice"))
	assert.Equal(t, http.StatusConflict, w.Code)
	var apiErr map[string]interface{}
	tc.decode(w, &apiErr)
	assert.Equal(t, float64(http.StatusConflict), apiErr["code"])

	w = tc.do(http.MethodPost, "/v1/keys", `{"name":"   "}`, as("bob"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = tc.do(http.MethodPost, "/v1/keys", `{}`, as("bob"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = tc.do(http.MethodGet, "/v1/keys", "", as("alice"))
	require.Equal(t, http.StatusOK, w.Code)
	var keys []map[string]interface{}
	tc.decode(w, &keys)
	require.Len(t, keys, 3)
	assert.Equal(t, "k3", keys[0]["displayName"])

	secret := first["secret"].(string)
	w = tc.do(http.MethodGet, "/v1/keys", "", bearer(secret))
	assert.Equal(t, http.StatusOK, w.Code)

	id := first["id"].(string)
	w = tc.do(http.MethodDelete, "/v1/keys/"+id, "", as("alice"))
	assert.Equal(t, http.StatusOK, w.Code)
	w = tc.do(http.MethodDelete, "/v1/keys/"+id, "", as("alice"))
	assert.Equal(t, http.StatusOK, w.Code)
	w = tc.do(http.MethodGet, "/v1/keys", "", bearer(secret))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = tc.do(http.MethodPost, "/v1/keys", `{"name":"k4"}`, as("alice"))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestIdentityHeadersNeedGatewayToken(t *testing.T) {
	tc := newTestServer(t)

	w := tc.do(http.MethodPost, "/v1/keys", `{"name":"k"}`, as("alice"))
	require.Equal(t, http.StatusCreated, w.Code)

	// a client naming alice without passing the gateway sees nothing
	w = tc.do(http.MethodGet, "/v1/keys", "", map[string]string{"X-User-Id": "alice"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotContains(t, w.Body.String(), "aio_")
	w = tc.do(http.MethodGet, "/v1/keys", "", map[string]string{"X-User-Id": "alice", "X-Gateway-Token": "guess"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	config.ConfigGlobal.GatewayToken = ""
	w = tc.do(http.MethodGet, "/v1/keys", "", as("alice"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestLifecycle(t *testing.T) {
	tc := newTestServer(t)

	// a provider with one registered model
	w := tc.do(http.MethodPost, "/v1/providers", `{"providerName":"Acme"}`, as("acme"))
	require.Equal(t, http.StatusCreated, w.Code)
	w = tc.do(http.MethodPost, "/v1/models",
		`{"id":"acme-ocr","name":"OCR","modelType":"image","pricePerInference":0.1}`, as("acme"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// the developer calls with an API key
	w = tc.do(http.MethodPost, "/v1/keys", `{"name":"ci"}`, as("dev"))
	require.Equal(t, http.StatusCreated, w.Code)
	var key map[string]interface{}
	tc.decode(w, &key)
	auth := bearer(key["secret"].(string))

	w = tc.do(http.MethodPost, "/v1/requests", `{"modelId":"nope"}`, auth)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = tc.do(http.MethodPost, "/v1/requests", `{"modelId":5}`, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = tc.do(http.MethodPost, "/v1/requests", `{"modelId":"acme-ocr"}`, auth)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var req map[string]interface{}
	tc.decode(w, &req)
	assert.Equal(t, "pending", req["status"])
	assert.Equal(t, "0.1", req["price"])
	assert.NotEmpty(t, req["providerId"])
	id := req["id"].(string)

	// pending spend already counts
	w = tc.do(http.MethodGet, "/v1/requests/stats", "", auth)
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]interface{}
	tc.decode(w, &stats)
	assert.Equal(t, "0.1", stats["totalSpent"])
	assert.Equal(t, float64(0), stats["completedCount"])

	path := "/v1/requests/" + id + "/status"
	w = tc.do(http.MethodPost, path, `{"status":"processing"}`, as("dev"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = tc.do(http.MethodPost, path, `{"status":"processing"}`, serving())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = tc.do(http.MethodPost, path, `{"status":"completed"}`, serving())
	assert.Equal(t, http.StatusConflict, w.Code)
	w = tc.do(http.MethodPost, path, `{"status":"completed","processingTimeMs":300}`, serving())
	require.Equal(t, http.StatusOK, w.Code)
	w = tc.do(http.MethodPost, path, `{"status":"failed","processingTimeMs":1}`, serving())
	assert.Equal(t, http.StatusConflict, w.Code)
	w = tc.do(http.MethodPost, "/v1/requests/missing/status", `{"status":"processing"}`, serving())
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = tc.do(http.MethodGet, "/v1/requests/"+id, "", auth)
	require.Equal(t, http.StatusOK, w.Code)
	tc.decode(w, &req)
	assert.Equal(t, "completed", req["status"])
	assert.Equal(t, float64(300), req["processingTimeMs"])
	w = tc.do(http.MethodGet, "/v1/requests/"+id, "", as("someone-else"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = tc.do(http.MethodGet, "/v1/requests", "", as("dev"))
	require.Equal(t, http.StatusOK, w.Code)
	var reqs []map[string]interface{}
	tc.decode(w, &reqs)
	assert.Len(t, reqs, 1)

	w = tc.do(http.MethodGet, "/v1/requests/stats", "", as("dev"))
	tc.decode(w, &stats)
	assert.Equal(t, float64(1), stats["completedCount"])
	assert.Equal(t, float64(300), stats["averageProcessingTimeMs"])

	w = tc.do(http.MethodGet, "/v1/providers/me", "", as("acme"))
	require.Equal(t, http.StatusOK, w.Code)
	var provider map[string]interface{}
	tc.decode(w, &provider)
	assert.Equal(t, "Acme", provider["providerName"])
	assert.Equal(t, float64(1), provider["totalRequests"])
	assert.Equal(t, float64(1), provider["reputationScore"])

	w = tc.do(http.MethodPut, "/v1/providers/me", `{"stakeAmount":"-3"}`, as("acme"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = tc.do(http.MethodPut, "/v1/providers/me", `{"stakeAmount":"25","website":"https://acme.io"}`, as("acme"))
	require.Equal(t, http.StatusOK, w.Code)
	tc.decode(w, &provider)
	assert.Equal(t, "25", provider["stakeAmount"])
	w = tc.do(http.MethodGet, "/v1/providers/me", "", as("nobody"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterProviderChunkedEmptyBody(t *testing.T) {
	tc := newTestServer(t)

	// an empty reader of unknown size, sent with chunked encoding
	req := httptest.NewRequest(http.MethodPost, "/v1/providers", io.MultiReader())
	require.Equal(t, int64(-1), req.ContentLength)
	for k, v := range as("carol") {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	tc.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var provider map[string]interface{}
	tc.decode(w, &provider)
	assert.Equal(t, "carol Labs", provider["providerName"])

	w = tc.do(http.MethodPost, "/v1/providers", `{"providerName":`, as("dave"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCloseStopsReconcile(t *testing.T) {
	config.ConfigGlobal = config.DefaultConfig()
	config.ConfigGlobal.DbSqlite = ":memory:"
	config.ConfigGlobal.ReconcileIntervalSec = 3600
	oracle, err := NewOracleServer("0", datastore.SQLite, gin.TestMode)
	require.NoError(t, err)
	assert.NoError(t, oracle.Close(time.Second))
}

func TestServingEndpointDisabledWithoutToken(t *testing.T) {
	tc := newTestServer(t)
	config.ConfigGlobal.ServingToken = ""

	w := tc.do(http.MethodPost, "/v1/requests/any/status", `{"status":"processing"}`, serving())
	assert.Equal(t, http.StatusForbidden, w.Code)
}
