package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/HealthPipe/internal/genai"
	"github.com/BTreeMap/HealthPipe/internal/messaging"
	"github.com/BTreeMap/HealthPipe/internal/models"
	"github.com/BTreeMap/HealthPipe/internal/scheduler"
	"github.com/BTreeMap/HealthPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/HealthPipe/internal/whatsapp"
)

type fakeSessions int

func (f fakeSessions) Len() int { return int(f) }

type fakeRegistry struct {
	infos    []models.ReminderInfo
	canceled []string
}

func (f *fakeRegistry) List() []models.ReminderInfo { return f.infos }

func (f *fakeRegistry) Cancel(id string) error {
	for i, info := range f.infos {
		if info.ID == id {
			f.infos = append(f.infos[:i], f.infos[i+1:]...)
			f.canceled = append(f.canceled, id)
			return nil
		}
	}
	return scheduler.ErrReminderNotFound
}

func newTestServer(reg *fakeRegistry) *Server {
	return NewServer(messaging.NewWhatsAppService(whatsapp.NewMockClient()), fakeSessions(3), reg, nil)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHealthHandler(t *testing.T) {
	reg := &fakeRegistry{infos: []models.ReminderInfo{{ID: "a"}, {ID: "b"}}}
	rr := httptest.NewRecorder()
	newTestServer(reg).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 3, body["active_sessions"])
	assert.EqualValues(t, 2, body["armed_reminders"])
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestServer(&fakeRegistry{}).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestServer(&fakeRegistry{}).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "healthpipe_")
}

func TestListRemindersHandler_FiltersByUser(t *testing.T) {
	next := time.Date(2025, 4, 26, 9, 0, 0, 0, time.UTC)
	reg := &fakeRegistry{infos: []models.ReminderInfo{
		{ID: "a", UserID: "15550001111", Kind: models.ReminderPeriod, NextRun: next},
		{ID: "b", UserID: "15550002222", Kind: models.ReminderFitnessPlan, NextRun: next},
	}}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/reminders?user="+url.QueryEscape("+1 555 000 1111"), nil)
	newTestServer(reg).Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Status string                `json:"status"`
		Result []models.ReminderInfo `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, models.APIStatusOK, resp.Status)
	require.Len(t, resp.Result, 1)
	assert.Equal(t, "a", resp.Result[0].ID)

	rr = httptest.NewRecorder()
	newTestServer(reg).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reminders?user=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCancelReminderHandler(t *testing.T) {
	reg := &fakeRegistry{infos: []models.ReminderInfo{{ID: "a"}}}
	handler := newTestServer(reg).Handler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/reminders/a", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"a"}, reg.canceled)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/reminders/a", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, models.APIStatusError, decode(t, rr)["status"])
}

func TestTwilioWebhookRoute(t *testing.T) {
	svc := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	server := NewServer(svc, fakeSessions(0), &fakeRegistry{}, svc.TwilioWebhookHandler)

	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"start"}}
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	resp := <-svc.Responses()
	assert.Equal(t, "15551234567", resp.From)
}

func TestWebhookRouteAbsentForWhatsApp(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestServer(&fakeRegistry{}).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/twilio/webhook", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRun_UnknownProviderIsCollaboratorFailure(t *testing.T) {
	err := Run(nil, nil, nil,
		[]genai.Option{genai.WithAPIKey("test-key")},
		[]Option{WithProvider("carrier-pigeon"), WithStateDir(t.TempDir())})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestRun_MissingAPIKeyIsCollaboratorFailure(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	err := Run(nil, nil, nil, nil, []Option{WithProvider(ProviderTwilio)})
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
}
