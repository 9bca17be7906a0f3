package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/0xmhha/explorer-go/internal/testutil"
	"github.com/0xmhha/explorer-go/pkg/alert"
	"github.com/0xmhha/explorer-go/pkg/api/websocket"
	"github.com/0xmhha/explorer-go/pkg/search"
)

const testNode = "https://node.test"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type decodedResponse struct {
	Session string `json:"session"`
	View    struct {
		Status       string `json:"status"`
		Loading      bool   `json:"loading"`
		ShowNextPage bool   `json:"showNextPage"`
		HasQuery     bool   `json:"hasQuery"`
		ExplorerPath string `json:"explorerPath"`
		State        struct {
			Kind string `json:"kind"`
			Page int    `json:"page"`
		} `json:"state"`
		Result *struct {
			Block *struct {
				Header struct {
					Height uint64 `json:"Height"`
				} `json:"header"`
			} `json:"block"`
			Transactions *struct {
				Transactions []json.RawMessage `json:"transactions"`
			} `json:"transactions"`
		} `json:"result"`
	} `json:"view"`
	Alerts []string `json:"alerts"`
	Error  string   `json:"error"`
}

type fixture struct {
	server    *Server
	http      *httptest.Server
	client    *http.Client
	transport *testutil.FakeTransport
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.QueryNode = testNode
	cfg.PageSize = 2
	cfg.EnableRateLimit = false
	return cfg
}

func newFixture(t *testing.T, cfg *Config, responses ...testutil.Response) *fixture {
	t.Helper()
	transport := testutil.NewFakeTransport(responses...)
	s, err := NewServer(cfg, testutil.NewTestLogger(t), func() (search.Transport, error) {
		return transport, nil
	})
	require.NoError(t, err)

	hs := httptest.NewServer(s.Router())
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		hs.Close()
		s.Close()
	})
	return &fixture{server: s, http: hs, client: &http.Client{Jar: jar}, transport: transport}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (int, decodedResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(t, err)
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out decodedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestNewServerValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Port = 0
	_, err := NewServer(cfg, nil, func() (search.Transport, error) { return nil, nil })
	assert.Error(t, err)

	_, err = NewServer(testConfig(), nil, nil)
	assert.Error(t, err)
}

func TestHealthAndVersion(t *testing.T) {
	f := newFixture(t, testConfig())

	resp, err := f.client.Get(f.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, testNode, health.QueryNode)

	resp2, err := f.client.Get(f.http.URL + "/version")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var version map[string]string
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&version))
	assert.Equal(t, Version, version["version"])

	resp3, err := f.client.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)
}

func TestExploreTip(t *testing.T) {
	f := newFixture(t, testConfig(), testutil.Response{Body: testutil.BlockPayload(100, 1620000000)})

	status, out := f.do(t, http.MethodGet, "/api/explore", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, out.Session)
	assert.Equal(t, "settled", out.View.Status)
	assert.Equal(t, "tip", out.View.State.Kind)
	assert.False(t, out.View.HasQuery)
	require.NotNil(t, out.View.Result)
	require.NotNil(t, out.View.Result.Block)
	assert.Equal(t, uint64(100), out.View.Result.Block.Header.Height)
	assert.Equal(t, 1, f.server.Sessions().Len())
}

func TestSessionPersistsAcrossRequests(t *testing.T) {
	f := newFixture(t, testConfig(),
		testutil.Response{Body: testutil.TransactionsPayload("p1", 2, 10)},
		testutil.Response{Body: testutil.TransactionsPayload("p2", 2, 8)},
	)

	status, first := f.do(t, http.MethodPost, "/api/search", SearchRequest{Query: "  " + testutil.PublicKey + " "})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "public-key", first.View.State.Kind)
	assert.True(t, first.View.ShowNextPage)
	assert.Equal(t, "u/"+testutil.PublicKey, first.View.ExplorerPath)

	status, second := f.do(t, http.MethodPost, "/api/next", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, first.Session, second.Session)
	assert.Equal(t, 2, second.View.State.Page)

	// Page 1 is served from the session cache.
	status, back := f.do(t, http.MethodPost, "/api/prev", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, back.View.State.Page)
	assert.Equal(t, 2, f.transport.Calls())
	assert.Equal(t, 1, f.server.Sessions().Len())

	status, view := f.do(t, http.MethodGet, "/api/view", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, view.View.State.Page)
}

func TestExploreWithParams(t *testing.T) {
	f := newFixture(t, testConfig(), testutil.Response{Body: testutil.BlockPayload(5, 1620000000)})

	status, out := f.do(t, http.MethodGet, "/api/explore?block-height=5", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "block-height", out.View.State.Kind)
	assert.True(t, out.View.HasQuery)
	assert.Equal(t, "/api/v1/block", f.transport.Last().Path)
}

func TestSessionErrors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		responses  []testutil.Response
		wantStatus int
		wantAlert  string
	}{
		{
			name:       "invalid search",
			method:     http.MethodPost,
			path:       "/api/search",
			body:       SearchRequest{Query: "nonsense"},
			wantStatus: http.StatusBadRequest,
			wantAlert:  alert.InvalidInputMessage,
		},
		{
			name:       "transport failure",
			method:     http.MethodGet,
			path:       "/api/explore?transaction-id=" + testutil.TransactionID,
			responses:  []testutil.Response{{Err: errors.New("boom")}},
			wantStatus: http.StatusBadGateway,
			wantAlert:  `Unknown error occurred: {"error":"boom"}`,
		},
		{
			name:       "bad height",
			method:     http.MethodGet,
			path:       "/api/explore?block-height=abc",
			wantStatus: http.StatusBadRequest,
			wantAlert:  alert.InvalidInputMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig(), tt.responses...)
			status, out := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, []string{tt.wantAlert}, out.Alerts)
			assert.Equal(t, tt.wantAlert, out.Error)
		})
	}
}

func TestPrevOnFirstPage(t *testing.T) {
	f := newFixture(t, testConfig(), testutil.Response{Body: testutil.TransactionsPayload("p", 1, 0)})

	status, _ := f.do(t, http.MethodGet, "/api/explore?public-key="+testutil.PublicKey, nil)
	require.Equal(t, http.StatusOK, status)

	status, out := f.do(t, http.MethodPost, "/api/prev", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, []string{alert.InvalidPageMessage}, out.Alerts)
	assert.Equal(t, alert.InvalidPageMessage, out.Error)
	assert.Equal(t, 1, out.View.State.Page)
	assert.Equal(t, 1, f.transport.Calls())
}

func TestSearchBadBody(t *testing.T) {
	f := newFixture(t, testConfig())

	resp, err := f.client.Post(f.http.URL+"/api/search", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, f.server.Sessions().Len())
}

func TestClassify(t *testing.T) {
	f := newFixture(t, testConfig())

	tests := []struct {
		query      string
		wantKind   string
		wantPath   string
		wantStatus int
	}{
		{testutil.PublicKey, "public-key", "u/" + testutil.PublicKey, http.StatusOK},
		{testutil.BlockHash, "block-hash", "blocks/" + testutil.BlockHash, http.StatusOK},
		{"12345", "block-height", "blocks/12345", http.StatusOK},
		{"hello", "invalid", "", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := f.client.Get(f.http.URL + "/api/classify?q=" + url.QueryEscape(tt.query))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var out struct {
				Kind         string `json:"kind"`
				ExplorerPath string `json:"explorerPath"`
				Request      *struct {
					Path string `json:"path"`
				} `json:"request"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, tt.wantPath, out.ExplorerPath)
			if tt.wantKind == "invalid" {
				assert.Nil(t, out.Request)
			} else {
				assert.NotNil(t, out.Request)
			}
		})
	}
	assert.Zero(t, f.transport.Calls())
}

func TestWebSocketFeed(t *testing.T) {
	f := newFixture(t, testConfig(), testutil.Response{Body: testutil.BlockPayload(7, 1620000000)})

	_, first := f.do(t, http.MethodGet, "/api/view", nil)
	require.NotEmpty(t, first.Session)

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws?session=" + first.Session
	conn, _, err := gws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "subscribe",
		"payload": map[string]string{"type": string(websocket.SubscribeView)},
	}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ack websocket.Message
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "success", ack.Type)

	_, _ = f.do(t, http.MethodGet, "/api/explore?block-height=7", nil)

	statuses := make([]string, 0, 2)
	for len(statuses) < 2 {
		var msg websocket.Message
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, "event", msg.Type)
		var event struct {
			Data struct {
				Status string `json:"status"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		statuses = append(statuses, event.Data.Status)
	}
	assert.Equal(t, []string{"loading", "settled"}, statuses)
}

func TestWebSocketUnknownSession(t *testing.T) {
	f := newFixture(t, testConfig())

	resp, err := f.client.Get(f.http.URL + "/ws?session=missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionExpiry(t *testing.T) {
	f := newFixture(t, testConfig())
	m := f.server.Sessions()

	sess, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.Zero(t, m.Expire())

	now := time.Now().Add(2 * f.server.config.SessionTTL)
	m.now = func() time.Time { return now }
	assert.Equal(t, 1, m.Expire())
	_, ok := m.Get(sess.ID)
	assert.False(t, ok)
}

func TestRateLimitedServer(t *testing.T) {
	cfg := testConfig()
	cfg.EnableRateLimit = true
	cfg.RateLimitPerSecond = 1
	cfg.RateLimitBurst = 1
	f := newFixture(t, cfg)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := f.client.Get(f.http.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad port", func(c *Config) { c.Port = 0 }, false},
		{"no read timeout", func(c *Config) { c.ReadTimeout = 0 }, false},
		{"cors without origins", func(c *Config) { c.EnableCORS = true; c.AllowedOrigins = nil }, false},
		{"empty ws path", func(c *Config) { c.WebSocketPath = "" }, false},
		{"bad rate", func(c *Config) { c.RateLimitPerSecond = 0 }, false},
		{"no ttl", func(c *Config) { c.SessionTTL = 0 }, false},
		{"no cookie", func(c *Config) { c.SessionCookie = "" }, false},
		{"no query node", func(c *Config) { c.QueryNode = "" }, false},
		{"page size", func(c *Config) { c.PageSize = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
	assert.Equal(t, "localhost:8080", DefaultConfig().Address())
}
