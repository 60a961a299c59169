package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxypool/backend/internal/auth"
	jwtpkg "proxypool/backend/internal/auth/jwt"
	"proxypool/backend/internal/config"
	"proxypool/backend/internal/health"
	"proxypool/backend/internal/service"
	"proxypool/backend/internal/storage/memory"
)

type routerFixture struct {
	router *gin.Engine
	admin  *service.AdminService
	store  *memory.Store
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore(10 * time.Minute)
	authService := auth.NewService(store)
	jwtManager := jwtpkg.NewManager("test-secret-key-at-least-32-characters", "proxypool-test", 15*time.Minute, time.Hour)

	poolService := service.NewPoolService(store, 10*time.Minute, 1000, nil, nil)
	uploadService := service.NewUploadService(store, store, 100, nil, nil)
	usageService := service.NewUsageService(store)
	adminService := service.NewAdminService(store, poolService, nil, nil)

	router := NewRouter(RouterDependencies{
		Config: &config.Config{
			CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
		},
		AuthService:   authService,
		JWTManager:    jwtManager,
		PoolService:   poolService,
		UploadService: uploadService,
		UsageService:  usageService,
		AdminService:  adminService,
		Health:        health.NewHealthChecker(store, nil, nil),
	})

	return &routerFixture{router: router, admin: adminService, store: store}
}

func (f *routerFixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *routerFixture) login(t *testing.T, accessKey string) string {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"accessKey": accessKey})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			AccessToken string `json:"accessToken"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.AccessToken)
	return resp.Data.AccessToken
}

func TestHealthEndpoints(t *testing.T) {
	f := newRouterFixture(t)

	// The probe handler registers /live and /ready, mounted under /health
	rec := f.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var snapshot map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, "OK", snapshot["store"])
}

func TestLoginAndMe(t *testing.T) {
	f := newRouterFixture(t)

	_, accessKey, err := f.admin.CreateUser(service.CreateUserInput{Username: "alice"})
	require.NoError(t, err)

	token := f.login(t, accessKey)

	rec := f.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "alice")
}

func TestLoginRejectsUnknownKey(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"accessKey": "pk_unknown"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPoolRoutesRequireAuth(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/pool/generate", "", gin.H{"amount": 10})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerateAndDeliver(t *testing.T) {
	f := newRouterFixture(t)

	_, accessKey, err := f.admin.CreateUser(service.CreateUserInput{Username: "alice"})
	require.NoError(t, err)
	token := f.login(t, accessKey)

	proxies := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		proxies = append(proxies, fmt.Sprintf("10.0.0.%d:8080:user:pass", i+1))
	}
	_, err = service.NewUploadService(f.store, f.store, 100, nil, nil).
		Upload("uploader", "seed.txt", joinLines(proxies), nil)
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/api/v1/pool/generate", token, gin.H{"amount": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/v1/pool/batch", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/pool/copy", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The batch is consumed, a second delivery has nothing to serve
	rec = f.do(http.MethodPost, "/api/v1/pool/copy", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateNotEnoughIncludesAvailable(t *testing.T) {
	f := newRouterFixture(t)

	_, accessKey, err := f.admin.CreateUser(service.CreateUserInput{Username: "alice"})
	require.NoError(t, err)
	token := f.login(t, accessKey)

	rec := f.do(http.MethodPost, "/api/v1/pool/generate", token, gin.H{"amount": 10})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "available")
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newRouterFixture(t)

	_, accessKey, err := f.admin.CreateUser(service.CreateUserInput{Username: "alice"})
	require.NoError(t, err)
	token := f.login(t, accessKey)

	rec := f.do(http.MethodGet, "/api/v1/admin/users", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/status/statistics", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func joinLines(lines []string) string {
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	return content
}
