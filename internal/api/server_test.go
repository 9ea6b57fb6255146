package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/checklist-engine/internal/auth"
	"github.com/terra-clan/checklist-engine/internal/checklist"
	"github.com/terra-clan/checklist-engine/internal/config"
	"github.com/terra-clan/checklist-engine/internal/events"
	"github.com/terra-clan/checklist-engine/internal/models"
	"github.com/terra-clan/checklist-engine/internal/services"
	"github.com/terra-clan/checklist-engine/internal/storage/storagetest"
)

const (
	testUsername = "operator"
	testPassword = "correct-horse"
	testBaseURL  = "https://checklists.example.com"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type testEnv struct {
	srv     *httptest.Server
	client  *http.Client
	manager *checklist.StoreManager
}

func newTestEnv(t *testing.T, registry *services.Registry) *testEnv {
	t.Helper()

	repo := storagetest.NewTestRepository(t)
	broker := events.NewLocalBroker()
	t.Cleanup(func() { broker.Close() })

	mgr := checklist.NewManager(repo, checklist.WithBroker(broker))

	_, err := auth.CreateAdmin(context.Background(), repo, testUsername, "Operator", testPassword)
	require.NoError(t, err)

	server := NewServer(
		config.ServerConfig{PublicBaseURL: testBaseURL},
		config.SessionConfig{TTL: time.Hour},
		Dependencies{
			Manager:  mgr,
			Users:    repo,
			Sessions: auth.NewCookieSessionStore(),
			Broker:   broker,
			Registry: registry,
		},
	)

	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{
		srv:     srv,
		client:  &http.Client{Jar: jar, Timeout: 5 * time.Second},
		manager: mgr,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	status, _ := e.do(t, http.MethodPost, "/api/v1/auth/login", models.LoginRequest{
		Username: testUsername,
		Password: testPassword,
	})
	require.Equal(t, http.StatusOK, status)
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func commissioningTemplate() models.TemplateRequest {
	return models.TemplateRequest{
		Name:          "Cabinet commissioning",
		EstimatedDays: 10,
		Categories: models.Categories{
			{ID: "site", Name: "Site", Tasks: []models.Task{
				{ID: "power", Title: "Mains available", Type: models.TaskCheckbox, Required: true},
				{ID: "length", Title: "Foundation length", Type: models.TaskNumber, Required: true},
				{ID: "notes", Title: "Remarks", Type: models.TaskText},
			}},
		},
	}
}

// createChecklist creates a template and a checklist from it as the admin
func (e *testEnv) createChecklist(t *testing.T, due *time.Time) models.ChecklistResponse {
	t.Helper()

	status, env := e.do(t, http.MethodPost, "/api/v1/templates", commissioningTemplate())
	require.Equal(t, http.StatusCreated, status)
	var tmpl models.Template
	decodeData(t, env, &tmpl)

	status, env = e.do(t, http.MethodPost, "/api/v1/checklists", models.CreateChecklistRequest{
		TemplateID:    tmpl.ID,
		ProjectName:   "Plant 7",
		CustomerName:  "ACME",
		CustomerEmail: "ops@acme.test",
		DueDate:       due,
	})
	require.Equal(t, http.StatusCreated, status)

	var created models.ChecklistResponse
	decodeData(t, env, &created)
	return created
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, nil)

	status, env := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	status, _ = e.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, status)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyReportsFailingDependency(t *testing.T) {
	registry := services.NewRegistry()
	registry.Register("redis", services.NewPingProvider("redis", pingFunc(func(context.Context) error {
		return errors.New("connection refused")
	})))

	e := newTestEnv(t, registry)

	status, env := e.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_ready", env.Error.Code)
}

func TestAdminRoutesRequireSession(t *testing.T) {
	e := newTestEnv(t, nil)

	status, env := e.do(t, http.MethodGet, "/api/v1/templates", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)

	// A cookie naming no admin is rejected
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/api/v1/checklists", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "not-a-user"})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginLogout(t *testing.T) {
	e := newTestEnv(t, nil)

	status, env := e.do(t, http.MethodPost, "/api/v1/auth/login", models.LoginRequest{
		Username: testUsername,
		Password: "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", env.Error.Code)

	// Usernames are case-insensitive
	status, _ = e.do(t, http.MethodPost, "/api/v1/auth/login", models.LoginRequest{
		Username: "  OPERATOR ",
		Password: testPassword,
	})
	require.Equal(t, http.StatusOK, status)

	status, env = e.do(t, http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, status)
	var me models.AdminUser
	decodeData(t, env, &me)
	assert.Equal(t, testUsername, me.Username)
	assert.NotContains(t, string(env.Data), "password")

	status, _ = e.do(t, http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = e.do(t, http.MethodGet, "/api/v1/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestChecklistLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t, nil)
	e.login(t)

	created := e.createChecklist(t, nil)
	token := created.Checklist.PublicToken
	assert.Equal(t, testBaseURL+"/c/"+token, created.PublicURL)
	assert.Equal(t, models.StatusSent, created.Checklist.Status)
	assert.Equal(t, models.Progress{Completed: 0, Total: 2, Percentage: 0}, created.Checklist.Progress)

	// First open moves the checklist to in_progress
	status, env := e.do(t, http.MethodGet, "/c/"+token, nil)
	require.Equal(t, http.StatusOK, status)
	var view models.ChecklistView
	decodeData(t, env, &view)
	assert.Equal(t, models.StatusInProgress, view.Status)

	status, env = e.do(t, http.MethodPut, "/c/"+token+"/tasks/power", map[string]interface{}{"value": "yes"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_value", env.Error.Code)

	status, env = e.do(t, http.MethodPut, "/c/"+token+"/tasks/missing", map[string]interface{}{"value": true})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "task_not_found", env.Error.Code)

	status, _ = e.do(t, http.MethodPut, "/c/"+token+"/tasks/power", map[string]interface{}{"value": true})
	require.Equal(t, http.StatusOK, status)

	status, env = e.do(t, http.MethodPut, "/c/"+token+"/tasks/length", map[string]interface{}{"value": 1250.5})
	require.Equal(t, http.StatusOK, status)
	decodeData(t, env, &view)
	assert.Equal(t, models.StatusCompleted, view.Status)
	assert.Equal(t, 100, view.Progress.Percentage)
	require.NotNil(t, view.CompletedAt)

	status, env = e.do(t, http.MethodGet, "/api/v1/checklists/stats", nil)
	require.Equal(t, http.StatusOK, status)
	var stats models.ChecklistStats
	decodeData(t, env, &stats)
	assert.Equal(t, models.ChecklistStats{Total: 1, Completed: 1}, stats)

	status, env = e.do(t, http.MethodGet, "/api/v1/checklists?status=completed", nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Checklists []models.ChecklistView `json:"checklists"`
		Total      int                    `json:"total"`
	}
	decodeData(t, env, &list)
	assert.Equal(t, 1, list.Total)

	status, _ = e.do(t, http.MethodDelete, "/api/v1/checklists/"+created.Checklist.ID, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = e.do(t, http.MethodGet, "/c/"+token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestCreateChecklistValidation(t *testing.T) {
	e := newTestEnv(t, nil)
	e.login(t)

	status, env := e.do(t, http.MethodPost, "/api/v1/checklists", models.CreateChecklistRequest{
		CustomerEmail: "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "project_name")
	assert.Contains(t, env.Error.Fields, "customer_email")

	status, env = e.do(t, http.MethodPost, "/api/v1/checklists", models.CreateChecklistRequest{
		TemplateID:    "00000000-0000-0000-0000-000000000000",
		ProjectName:   "Plant 7",
		CustomerName:  "ACME",
		CustomerEmail: "ops@acme.test",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "template_not_found", env.Error.Code)

	status, env = e.do(t, http.MethodGet, "/api/v1/checklists?status=archived", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestSetTaskValueRequiresValueKey(t *testing.T) {
	e := newTestEnv(t, nil)
	e.login(t)

	created := e.createChecklist(t, nil)
	path := "/c/" + created.Checklist.PublicToken + "/tasks/notes"

	status, _ := e.do(t, http.MethodPut, path, map[string]interface{}{"value": "panel B"})
	require.Equal(t, http.StatusOK, status)

	status, env := e.do(t, http.MethodPut, path, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_value", env.Error.Code)

	status, env = e.do(t, http.MethodGet, "/c/"+created.Checklist.PublicToken, nil)
	require.Equal(t, http.StatusOK, status)
	var view models.ChecklistView
	decodeData(t, env, &view)
	assert.True(t, view.TaskStates.Get("notes").Equal(models.StringValue("panel B")))

	// an explicit null clears the answer
	status, env = e.do(t, http.MethodPut, path, map[string]interface{}{"value": nil})
	require.Equal(t, http.StatusOK, status)
	view = models.ChecklistView{}
	decodeData(t, env, &view)
	assert.True(t, view.TaskStates.Get("notes").IsNull())
}

func TestListChecklistsReportsTotalAcrossPages(t *testing.T) {
	e := newTestEnv(t, nil)
	e.login(t)

	e.createChecklist(t, nil)
	e.createChecklist(t, nil)
	e.createChecklist(t, nil)

	status, env := e.do(t, http.MethodGet, "/api/v1/checklists?limit=2&offset=2", nil)
	require.Equal(t, http.StatusOK, status)
	var list models.ChecklistList
	decodeData(t, env, &list)
	assert.Len(t, list.Checklists, 1)
	assert.Equal(t, 3, list.Total)
}

func TestOverdueChecklistIsLocked(t *testing.T) {
	e := newTestEnv(t, nil)
	e.login(t)

	past := time.Now().UTC().Add(-48 * time.Hour)
	created := e.createChecklist(t, &past)
	assert.Equal(t, models.StatusOverdue, created.Checklist.EffectiveStatus)
	assert.True(t, created.Checklist.Locked)

	status, env := e.do(t, http.MethodPut, "/c/"+created.Checklist.PublicToken+"/tasks/power", map[string]interface{}{"value": true})
	assert.Equal(t, http.StatusLocked, status)
	assert.Equal(t, "checklist_locked", env.Error.Code)
}

func TestUnknownTokenIsNotFound(t *testing.T) {
	e := newTestEnv(t, nil)

	status, env := e.do(t, http.MethodGet, "/c/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Error.Code)

	status, _ = e.do(t, http.MethodPut, "/c/does-not-exist/tasks/power", map[string]interface{}{"value": true})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPublicEventStream(t *testing.T) {
	e := newTestEnv(t, nil)
	e.login(t)

	created := e.createChecklist(t, nil)
	token := created.Checklist.PublicToken

	status, _ := e.do(t, http.MethodGet, "/c/"+token, nil)
	require.Equal(t, http.StatusOK, status)

	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/c/" + token + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "snapshot", msg.Type)
	require.NotNil(t, msg.Checklist)
	assert.Equal(t, created.Checklist.ID, msg.Checklist.ID)

	status, _ = e.do(t, http.MethodPut, "/c/"+token+"/tasks/notes", map[string]interface{}{"value": "crane on site"})
	require.Equal(t, http.StatusOK, status)

	msg = StreamMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, events.EventTaskUpdated, msg.Event.Type)
	assert.Equal(t, "notes", msg.Event.TaskID)
	assert.Equal(t, models.StatusInProgress, msg.Event.Status)
}

func TestAdminEventStreamRequiresSession(t *testing.T) {
	e := newTestEnv(t, nil)

	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/v1/checklists/anything/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
