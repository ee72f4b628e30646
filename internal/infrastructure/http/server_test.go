package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/usecases"
)

type fakeSynth struct {
	resp *usecases.Response
	err  error
	got  []usecases.Request
}

func (f *fakeSynth) Handle(ctx context.Context, req usecases.Request) (*usecases.Response, error) {
	f.got = append(f.got, req)
	if req.Prompt == "" && req.Document == nil {
		return nil, usecases.ErrInvalidRequest
	}
	return f.resp, f.err
}

type fakeStore struct {
	records map[string]*entities.IncidentRecord
}

func (f *fakeStore) SaveContent(ctx context.Context, id, content string) error { return nil }

func (f *fakeStore) MergeReport(ctx context.Context, id string, report entities.Report) error {
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*entities.IncidentRecord, error) {
	if rec, ok := f.records[id]; ok {
		return rec, nil
	}
	return nil, ports.ErrNotFound
}

type fakeIndex struct {
	count int
	err   error
}

func (f *fakeIndex) Query(ctx context.Context, text string, topK int, filter ports.Filter) ([]entities.Metadata, error) {
	return nil, nil
}
func (f *fakeIndex) Upsert(ctx context.Context, docs ...ports.Document) error { return nil }
func (f *fakeIndex) Delete(ctx context.Context, filter ports.Filter) (int, error) { return 0, nil }
func (f *fakeIndex) Count(ctx context.Context) (int, error)                      { return f.count, f.err }

type fakeParser struct {
	text string
	err  error
}

func (f *fakeParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	return f.text, f.err
}
func (f *fakeParser) SupportedFormats() []string { return []string{"pdf"} }

func newTestServer(synth *fakeSynth, parser ports.DocumentParser) *Server {
	store := &fakeStore{records: map[string]*entities.IncidentRecord{
		"inc-1": {
			ID:        "inc-1",
			Content:   "стенограмма",
			Report:    entities.Report{Solution: entities.Text("откат")},
			UpdatedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		},
	}}
	return NewServer(synth, store, &fakeIndex{count: 42}, parser, Options{
		CORSOrigins:    []string{"http://localhost:5173"},
		MaxUploadBytes: 1 << 20,
	}, nil)
}

func multipartBody(t *testing.T, prompt, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if prompt != "" {
		require.NoError(t, mw.WriteField("prompt", prompt))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAskSolution_Form(t *testing.T) {
	synth := &fakeSynth{resp: &usecases.Response{Kind: usecases.KindAnswer, Answer: "### Шаги\n1. Перезапуск"}}
	srv := newTestServer(synth, nil)

	form := url.Values{"prompt": {"Как починить репликацию?"}}
	req := httptest.NewRequest(http.MethodPost, "/ask_solution/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "### Шаги\n1. Перезапуск", decode(t, rec)["solution"])
	require.Len(t, synth.got, 1)
	assert.Equal(t, "Как починить репликацию?", synth.got[0].Prompt)
}

func TestAskSolution_JSON(t *testing.T) {
	synth := &fakeSynth{resp: &usecases.Response{Kind: usecases.KindNotFound, Answer: usecases.NotFoundMessage}}
	srv := newTestServer(synth, nil)

	req := httptest.NewRequest(http.MethodPost, "/ask_solution/", strings.NewReader(`{"prompt":"вопрос"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, usecases.NotFoundMessage, decode(t, rec)["solution"])
}

func TestAskSolution_MissingPrompt(t *testing.T) {
	srv := newTestServer(&fakeSynth{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/ask_solution/", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgMissingInput, decode(t, rec)["error"])
}

func TestAskSolution_GatewayTimeout(t *testing.T) {
	timeout := &ports.GatewayError{Op: "completion", Timeout: true, Err: context.DeadlineExceeded}
	srv := newTestServer(&fakeSynth{err: timeout}, nil)

	form := url.Values{"prompt": {"вопрос"}}
	req := httptest.NewRequest(http.MethodPost, "/ask_solution/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestIncidentReport_Upload(t *testing.T) {
	report := entities.Report{
		IncidentSummary: entities.Text("Падение API"),
		Solution:        entities.Text("Увеличить пул"),
	}
	synth := &fakeSynth{resp: &usecases.Response{Kind: usecases.KindReport, Report: report, IncidentID: "meeting"}}
	srv := newTestServer(synth, nil)

	body, contentType := multipartBody(t, "кратко", "meeting.txt", append([]byte{0xEF, 0xBB, 0xBF}, []byte("Лог созвона")...))
	req := httptest.NewRequest(http.MethodPost, "/get_incident_report/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "meeting", rec.Header().Get("X-Incident-ID"))
	out := decode(t, rec)
	assert.Equal(t, "Падение API", out["incident_summary"])
	assert.Equal(t, "Увеличить пул", out["solution"])
	assert.NotContains(t, out, "root_cause")

	require.Len(t, synth.got, 1)
	require.NotNil(t, synth.got[0].Document)
	assert.Equal(t, "meeting.txt", synth.got[0].Document.Name)
	assert.Equal(t, "Лог созвона", synth.got[0].Document.Text, "BOM is stripped")
	assert.Equal(t, "кратко", synth.got[0].Prompt)
}

func TestIncidentReport_PromptOnly(t *testing.T) {
	synth := &fakeSynth{resp: &usecases.Response{Kind: usecases.KindAnswer, Answer: "ответ"}}
	srv := newTestServer(synth, nil)

	body, contentType := multipartBody(t, "вопрос", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/get_incident_report/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ответ", decode(t, rec)["solution"])
	assert.Nil(t, synth.got[0].Document)
}

func TestIncidentReport_Empty(t *testing.T) {
	srv := newTestServer(&fakeSynth{}, nil)

	body, contentType := multipartBody(t, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/get_incident_report/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgMissingInput, decode(t, rec)["error"])
}

func TestIncidentReport_InvalidUTF8(t *testing.T) {
	synth := &fakeSynth{}
	srv := newTestServer(synth, nil)

	body, contentType := multipartBody(t, "", "cp1251.txt", []byte{0xcf, 0xf0, 0xe8, 0xe2, 0xe5, 0xf2})
	req := httptest.NewRequest(http.MethodPost, "/get_incident_report/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, synth.got, "synthesis must not run for rejected uploads")
}

func TestIncidentReport_PDF(t *testing.T) {
	t.Run("without parser", func(t *testing.T) {
		srv := newTestServer(&fakeSynth{}, nil)
		body, contentType := multipartBody(t, "", "scan.pdf", []byte("%PDF-1.7"))
		req := httptest.NewRequest(http.MethodPost, "/get_incident_report/", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("with parser", func(t *testing.T) {
		synth := &fakeSynth{resp: &usecases.Response{Kind: usecases.KindReport, IncidentID: "scan"}}
		srv := newTestServer(synth, &fakeParser{text: "извлечённый текст"})
		body, contentType := multipartBody(t, "", "scan.pdf", []byte("%PDF-1.7"))
		req := httptest.NewRequest(http.MethodPost, "/get_incident_report/", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "извлечённый текст", synth.got[0].Document.Text)
	})

	t.Run("parser failure", func(t *testing.T) {
		srv := newTestServer(&fakeSynth{}, &fakeParser{err: errors.New("encrypted")})
		body, contentType := multipartBody(t, "", "scan.pdf", []byte("%PDF-1.7"))
		req := httptest.NewRequest(http.MethodPost, "/get_incident_report/", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestIncidentReport_TooLarge(t *testing.T) {
	srv := newTestServer(&fakeSynth{}, nil)

	body, contentType := multipartBody(t, "", "huge.txt", bytes.Repeat([]byte("a"), 2<<20))
	req := httptest.NewRequest(http.MethodPost, "/get_incident_report/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestIncidentReport_StoreFailure(t *testing.T) {
	srv := newTestServer(&fakeSynth{err: errors.New("database is locked")}, nil)

	body, contentType := multipartBody(t, "", "meeting.txt", []byte("текст"))
	req := httptest.NewRequest(http.MethodPost, "/get_incident_report/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgReportFailed+"database is locked", decode(t, rec)["error"])
}

func TestGetIncident(t *testing.T) {
	srv := newTestServer(&fakeSynth{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/incidents/inc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "inc-1", out["id"])
	assert.Equal(t, "стенограмма", out["content"])
	assert.Equal(t, map[string]any{"solution": "откат"}, out["report"])

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/incidents/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeSynth{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "ok", out["status"])
	assert.EqualValues(t, 42, out["entries"])
}

func TestHealth_IndexDown(t *testing.T) {
	srv := NewServer(&fakeSynth{}, &fakeStore{}, &fakeIndex{err: errors.New("disk I/O error")}, nil, Options{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&fakeSynth{}, nil)
	handler := srv.Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `incidentrag_http_requests_total{route="/api/health",status="200"}`)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(&fakeSynth{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/ask_solution/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	srv := NewServer(&fakeSynth{}, &fakeStore{}, nil, nil, Options{Addr: "127.0.0.1:0"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
