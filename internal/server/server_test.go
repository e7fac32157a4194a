package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"task-gateway/internal/cache"
	"task-gateway/internal/config"
	"task-gateway/internal/database"
	"task-gateway/internal/models"
	"task-gateway/internal/server"
	"task-gateway/internal/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm/logger"
)

type EndToEndSuite struct {
	suite.Suite
	api     *httptest.Server
	gateway *httptest.Server
	client  *http.Client
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Environment: "test"},
		Gateway: config.GatewayConfig{
			ProxyPrefix:                 "/api/proxy",
			APIPrefix:                   "/api",
			ProtectedPrefixes:           []string{"/tasks", "/api/proxy"},
			PublicPrefixes:              []string{"/api/proxy/api/auth"},
			CookieNames:                 []string{"jwt_token", "better-auth.session_token"},
			LoginPath:                   "/login",
			UpstreamTimeout:             5 * time.Second,
			UpstreamVerifiesCredentials: true,
		},
		Redis: config.RedisConfig{TaskListTTL: time.Minute},
		Auth: config.AuthConfig{
			JWTSecret:      "e2e-secret",
			Issuer:         "todo-api",
			AccessTokenTTL: 30 * time.Minute,
			BCryptCost:     bcrypt.MinCost,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

func (s *EndToEndSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:       database.DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     logger.Silent,
	})
	s.Require().NoError(err)
	s.Require().NoError(pool.Migrate())
	s.T().Cleanup(func() { pool.Close() })

	mr := miniredis.RunT(s.T())
	taskCache := cache.NewMultiLevelCache(
		cache.NewMemoryCache(128, time.Minute),
		cache.NewRedisCache(&cache.CacheConfig{Addr: mr.Addr()}, nil),
	)
	s.T().Cleanup(func() { taskCache.Close() })

	s.api = httptest.NewServer(server.NewAPIRouter(server.APIDeps{
		Config: cfg,
		DB:     pool,
		Cache:  taskCache,
	}))
	s.T().Cleanup(s.api.Close)

	cfg.Gateway.UpstreamURL = s.api.URL
	gw, err := server.NewGatewayRouter(cfg, nil)
	s.Require().NoError(err)
	s.gateway = httptest.NewServer(gw)
	s.T().Cleanup(s.gateway.Close)

	s.client = &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *EndToEndSuite) do(method, path, body string, mutate func(*http.Request)) (*http.Response, []byte) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.gateway.URL+path, reader)
	s.Require().NoError(err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp, data
}

func (s *EndToEndSuite) postForm(path string, form url.Values) (*http.Response, []byte) {
	resp, err := s.client.PostForm(s.gateway.URL+path, form)
	s.Require().NoError(err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp, data
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func sessionCookie(token string) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "jwt_token", Value: token}) }
}

func (s *EndToEndSuite) register(email string) services.AuthResult {
	resp, body := s.postForm("/api/proxy/api/auth/register", url.Values{
		"email":    {email},
		"password": {"password123"},
		"name":     {"E2E"},
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode, string(body))

	var result services.AuthResult
	s.Require().NoError(json.Unmarshal(body, &result))
	return result
}

func (s *EndToEndSuite) TestRootAndHealth() {
	resp, body := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(body), "alive")

	resp, _ = s.do(http.MethodGet, "/readyz", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)

	readyResp, err := http.Get(s.api.URL + "/readyz")
	s.Require().NoError(err)
	defer readyResp.Body.Close()
	s.Equal(http.StatusOK, readyResp.StatusCode)
	var ready struct {
		Info map[string]map[string]interface{} `json:"info"`
	}
	s.Require().NoError(json.NewDecoder(readyResp.Body).Decode(&ready))
	s.Contains(ready.Info["cache"], "l1")
	s.Contains(ready.Info["cache"], "l2")

	apiResp, err := http.Get(s.api.URL + "/")
	s.Require().NoError(err)
	defer apiResp.Body.Close()
	data, _ := io.ReadAll(apiResp.Body)
	s.JSONEq(`{"message":"Todo API is running!"}`, string(data))
}

func (s *EndToEndSuite) TestProtectedPageRedirectsToLogin() {
	resp, _ := s.do(http.MethodGet, "/tasks?view=all", "", nil)
	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("/login?return_to=%2Ftasks%3Fview%3Dall", resp.Header.Get("Location"))
}

func (s *EndToEndSuite) TestAPIWithoutCredentialIsRejectedAtTheGate() {
	resp, body := s.do(http.MethodGet, "/api/proxy/api/anyone/tasks", "", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Empty(resp.Header.Get("Location"))
	s.Contains(string(body), "message")
}

func (s *EndToEndSuite) TestForgedCredentialIsRejectedUpstream() {
	resp, _ := s.do(http.MethodGet, "/api/proxy/api/anyone/tasks", "", sessionCookie("forged.token.value"))
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *EndToEndSuite) TestTaskLifecycleThroughGateway() {
	alice := s.register("alice@example.com")
	tasks := "/api/proxy/api/" + alice.UserID + "/tasks"

	resp, body := s.do(http.MethodGet, tasks, "", sessionCookie(alice.AccessToken))
	s.Require().Equal(http.StatusOK, resp.StatusCode, string(body))
	s.Equal("[]", string(body))

	resp, body = s.do(http.MethodPost, tasks, `{"title":"Buy milk"}`, bearer(alice.AccessToken))
	s.Require().Equal(http.StatusCreated, resp.StatusCode, string(body))
	var created models.Task
	s.Require().NoError(json.Unmarshal(body, &created))
	s.Equal(alice.UserID, created.UserID)
	s.False(created.Completed)

	itemPath := tasks + "/" + jsonID(created.ID)

	resp, body = s.do(http.MethodPatch, itemPath+"/complete", "", sessionCookie(alice.AccessToken))
	s.Require().Equal(http.StatusOK, resp.StatusCode, string(body))
	var toggled models.Task
	s.Require().NoError(json.Unmarshal(body, &toggled))
	s.True(toggled.Completed)

	// The cached list must reflect the toggle.
	resp, body = s.do(http.MethodGet, tasks, "", sessionCookie(alice.AccessToken))
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var listed []models.Task
	s.Require().NoError(json.Unmarshal(body, &listed))
	s.Require().Len(listed, 1)
	s.True(listed[0].Completed)

	resp, _ = s.do(http.MethodPost, tasks, `{"title":""}`, bearer(alice.AccessToken))
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, body = s.do(http.MethodDelete, itemPath, "", bearer(alice.AccessToken))
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.JSONEq(`{"message":"Task deleted successfully"}`, string(body))

	resp, _ = s.do(http.MethodDelete, itemPath, "", bearer(alice.AccessToken))
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *EndToEndSuite) TestUsersAreIsolated() {
	alice := s.register("alice@example.com")
	bob := s.register("bob@example.com")

	aliceTasks := "/api/proxy/api/" + alice.UserID + "/tasks"
	resp, body := s.do(http.MethodPost, aliceTasks, `{"title":"private"}`, bearer(alice.AccessToken))
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var created models.Task
	s.Require().NoError(json.Unmarshal(body, &created))

	// Bob naming Alice in the path.
	resp, _ = s.do(http.MethodGet, aliceTasks, "", bearer(bob.AccessToken))
	s.Equal(http.StatusForbidden, resp.StatusCode)

	// Bob naming Alice's task id under his own path.
	bobItem := "/api/proxy/api/" + bob.UserID + "/tasks/" + jsonID(created.ID)
	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		resp, _ = s.do(method, bobItem, "", bearer(bob.AccessToken))
		s.Equal(http.StatusNotFound, resp.StatusCode, method)
	}
	resp, _ = s.do(http.MethodPut, bobItem, `{"title":"hijack"}`, bearer(bob.AccessToken))
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(http.MethodGet, "/api/proxy/api/"+bob.UserID+"/tasks", "", bearer(bob.AccessToken))
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("[]", string(body))
}

func (s *EndToEndSuite) TestAuthRoutesThroughGateway() {
	s.register("carol@example.com")

	resp, body := s.postForm("/api/proxy/api/auth/login", url.Values{
		"email":    {"carol@example.com"},
		"password": {"password123"},
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode, string(body))
	var result services.AuthResult
	s.Require().NoError(json.Unmarshal(body, &result))

	resp, body = s.do(http.MethodGet, "/api/proxy/api/auth/me", "", sessionCookie(result.AccessToken))
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(body), "carol@example.com")
	s.NotContains(string(body), "password")

	resp, _ = s.do(http.MethodPost, "/api/proxy/api/auth/register", `{"email":"carol@example.com","password":"password123"}`, nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestEndToEndSuite(t *testing.T) {
	suite.Run(t, new(EndToEndSuite))
}

func jsonID(id uint) string {
	data, _ := json.Marshal(id)
	return string(data)
}

func TestNewGatewayRouterRejectsBadUpstream(t *testing.T) {
	cfg := testConfig()
	cfg.Gateway.UpstreamURL = "ftp://example.com"

	_, err := server.NewGatewayRouter(cfg, nil)
	require.Error(t, err)

	cfg.Gateway.UpstreamURL = "http://localhost:8000"
	cfg.Gateway.FrontendURL = "::bad"
	_, err = server.NewGatewayRouter(cfg, nil)
	assert.Error(t, err)
}

func TestGatewayUnknownRouteWithoutFrontend(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.Gateway.UpstreamURL = "http://localhost:8000"

	router, err := server.NewGatewayRouter(cfg, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/about", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGatewayProtectsNonCanonicalPagePaths(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var reached []string
	frontend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = append(reached, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer frontend.Close()

	cfg := testConfig()
	cfg.Gateway.UpstreamURL = "http://localhost:8000"
	cfg.Gateway.FrontendURL = frontend.URL

	router, err := server.NewGatewayRouter(cfg, nil)
	require.NoError(t, err)

	for _, target := range []string{"/tasks", "//tasks", "/x/../tasks", "/./tasks"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusFound, w.Code, target)
		assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/login?return_to="), target)
	}
	assert.Empty(t, reached)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/about", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"/about"}, reached)
}
