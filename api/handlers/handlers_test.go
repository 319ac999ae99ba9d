package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sentini2/edusp/internal/db"
	"github.com/Sentini2/edusp/internal/license"
	"github.com/Sentini2/edusp/internal/relay"
	"github.com/Sentini2/edusp/internal/repository"
	"github.com/Sentini2/edusp/internal/session"
	"github.com/Sentini2/edusp/internal/ws"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	engine   *gin.Engine
	registry *session.Registry
	licenses *license.Service
}

func newFixture(t *testing.T, adminToken string, gated bool) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	testDB, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { testDB.Close() })
	licenses := license.NewService(repository.NewLicenseRepository(testDB), license.Config{MaxHardware: 1}, logger)

	reg := session.NewRegistry(logger)
	router := relay.NewRouter(reg, logger)
	t.Cleanup(router.Close)

	var opts []relay.Option
	if gated {
		opts = append(opts, relay.WithGate(licenses))
	}
	hub := relay.NewHub(reg, router, logger, opts...)

	engine := gin.New()
	NewWebSocketHandler(ws.NewHandler(hub, ws.DefaultConfig(), logger), "DEFAULT").RegisterRoutes(engine)
	labs := NewLabHandler(reg)
	engine.GET("/health", labs.Health)
	api := engine.Group("/api")
	labs.RegisterRoutes(api)
	NewLicenseHandler(licenses, adminToken).RegisterRoutes(api)

	return &fixture{engine: engine, registry: reg, licenses: licenses}
}

func (f *fixture) do(method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func dial(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"User-Agent": []string{"lab-pc/1.0"}})
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func expect(t *testing.T, conn *websocket.Conn, event string) ws.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", event)
		var msg ws.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Event == event {
			return msg
		}
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "", false)

	w := f.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["agents"])
	assert.Equal(t, float64(0), body["controllers"])
}

func TestSocket_UnknownRole(t *testing.T) {
	f := newFixture(t, "", false)

	w := f.do(http.MethodGet, "/socket?role=spectator", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, w).Code)
}

func TestSocket_AgentAndController(t *testing.T) {
	f := newFixture(t, "", false)
	srv := httptest.NewServer(f.engine)
	t.Cleanup(srv.Close)

	agent, _, err := dial(t, srv, "role=client&lab=lab-7")
	require.NoError(t, err)
	idMsg := expect(t, agent, relay.EventID)
	var agentID string
	require.NoError(t, json.Unmarshal(idMsg.Data, &agentID))

	ctrl, _, err := dial(t, srv, "role=admin&lab=LAB-7")
	require.NoError(t, err)
	roster := expect(t, ctrl, session.EventClients)

	var summaries []session.AgentSummary
	require.NoError(t, json.Unmarshal(roster.Data, &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, agentID, summaries[0].ID)
	assert.Equal(t, "lab-pc/1.0", summaries[0].Descriptor)

	w := f.do(http.MethodGet, "/api/labs/lab-7/clients", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []session.AgentSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, agentID, listed[0].ID)

	w = f.do(http.MethodGet, "/api/labs", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"labs":["LAB-7"]}`, w.Body.String())

	w = f.do(http.MethodGet, "/api/labs/other/clients", nil, nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestSocket_DefaultLab(t *testing.T) {
	f := newFixture(t, "", false)
	srv := httptest.NewServer(f.engine)
	t.Cleanup(srv.Close)

	agent, _, err := dial(t, srv, "role=agent")
	require.NoError(t, err)
	expect(t, agent, relay.EventID)

	assert.Len(t, f.registry.List("DEFAULT"), 1)
}

func TestSocket_LicenseGate(t *testing.T) {
	f := newFixture(t, "", true)
	srv := httptest.NewServer(f.engine)
	t.Cleanup(srv.Close)

	denied, _, err := dial(t, srv, "role=agent&key=BAD")
	require.NoError(t, err)
	msg := expect(t, denied, ws.EventError)
	assert.Contains(t, string(msg.Data), "license invalid")
	assert.Equal(t, 0, f.registry.AgentCount())

	lic, err := f.licenses.Issue(context.Background(), "monthly")
	require.NoError(t, err)

	agent, _, err := dial(t, srv, "role=agent&key="+lic.Key+"&hwid=pc-1")
	require.NoError(t, err)
	expect(t, agent, relay.EventID)

	second, _, err := dial(t, srv, "role=agent&key="+lic.Key+"&hwid=pc-2")
	require.NoError(t, err)
	expect(t, second, ws.EventError)
	assert.Equal(t, 1, f.registry.AgentCount())
}

func TestLicenseAPI_Lifecycle(t *testing.T) {
	f := newFixture(t, "", false)

	w := f.do(http.MethodPost, "/api/licenses", IssueLicenseRequest{Kind: "yearly"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var issued struct {
		Key  string `json:"key"`
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	assert.Equal(t, "yearly", issued.Kind)

	w = f.do(http.MethodPost, "/api/licenses/validate", ValidateLicenseRequest{Key: issued.Key, HardwareID: "pc-1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var v struct {
		OK            bool `json:"ok"`
		BoundHardware int  `json:"boundHardware"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.True(t, v.OK)
	assert.Equal(t, 1, v.BoundHardware)

	w = f.do(http.MethodGet, "/api/licenses", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), issued.Key)

	w = f.do(http.MethodPost, "/api/licenses/"+issued.Key+"/ban", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"key":"`+issued.Key+`","banned":true}`, w.Body.String())

	w = f.do(http.MethodPost, "/api/licenses/validate", ValidateLicenseRequest{Key: issued.Key}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "LICENSE_INVALID", decodeError(t, w).Code)

	w = f.do(http.MethodDelete, "/api/licenses/"+issued.Key, nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodDelete, "/api/licenses/"+issued.Key, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "LICENSE_NOT_FOUND", decodeError(t, w).Code)
}

func TestLicenseAPI_BadRequests(t *testing.T) {
	f := newFixture(t, "", false)

	w := f.do(http.MethodPost, "/api/licenses", IssueLicenseRequest{Kind: "weekly"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/licenses", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/licenses/validate", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/licenses/NOPE/ban", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLicenseAPI_AdminToken(t *testing.T) {
	f := newFixture(t, "s3cret", false)

	w := f.do(http.MethodGet, "/api/licenses", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, w).Code)

	w = f.do(http.MethodGet, "/api/licenses", nil, http.Header{"Authorization": []string{"Bearer wrong"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodGet, "/api/licenses", nil, http.Header{"Authorization": []string{"Bearer s3cret"}})
	assert.Equal(t, http.StatusOK, w.Code)

	// validate stays public so agents can check their own key
	w = f.do(http.MethodPost, "/api/licenses/validate", ValidateLicenseRequest{Key: "NOPE"}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
