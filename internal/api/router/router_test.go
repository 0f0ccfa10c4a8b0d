package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"polylab/backend/config"
	"polylab/backend/internal/api/handler"
	"polylab/backend/internal/dto"
	"polylab/backend/internal/service"
	"polylab/backend/pkg/jwt"
	"polylab/backend/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type stubRequestService struct{}

func (stubRequestService) Submit(context.Context, *dto.SubmitRequest, string, string) (*dto.SubmitResponse, error) {
	return &dto.SubmitResponse{RequestNumbers: map[string]string{}, RequestIDs: []string{}}, nil
}
func (stubRequestService) GetByNumber(context.Context, string) (*dto.RequestResponse, error) {
	return &dto.RequestResponse{RequestNumber: "MS-N-0425-00001"}, nil
}
func (stubRequestService) List(context.Context, *dto.RequestListRequest) ([]dto.RequestResponse, int64, error) {
	return []dto.RequestResponse{}, 0, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			MaxBodyBytes: 1 << 20,
			CORS:         config.CORSConfig{AllowOrigins: []string{"http://localhost:5173"}},
		},
		Auth: config.AuthConfig{
			JWTSecret:      "router-test-secret-0123456789",
			Issuer:         "polylab-auth",
			AccessTokenTTL: 15 * time.Minute,
		},
		Submission: config.SubmissionConfig{RateLimit: 10, RateLimitWindow: time.Minute},
		Metrics:    config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func setupRouter(t *testing.T, db Pinger) (*gin.Engine, *jwt.Manager) {
	t.Helper()
	cfg := testConfig()
	jwtMgr := jwt.NewManager(&cfg.Auth)
	h := handler.NewHandler(&service.Service{Request: stubRequestService{}}, zap.NewNop())
	return Setup(cfg, h, jwtMgr, nil, db, metrics.NewManager(), zap.NewNop()), jwtMgr
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(t, fakePinger{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"disabled"`)

	r, _ = setupRouter(t, fakePinger{err: errors.New("db down")})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestsRequireAuth(t *testing.T) {
	r, jwtMgr := setupRouter(t, fakePinger{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := jwtMgr.GenerateAccessToken("u-1", "Somchai", "somchai@example.com", "requester")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/MS-N-0425-00001", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := setupRouter(t, fakePinger{})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "polylab_http_requests_total"))
}

func TestNoRoute(t *testing.T) {
	r, _ := setupRouter(t, fakePinger{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/requests", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":10006`)
}
