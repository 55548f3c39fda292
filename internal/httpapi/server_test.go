package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varshakam/omr-eval/internal/audit"
	"github.com/varshakam/omr-eval/internal/config"
	"github.com/varshakam/omr-eval/internal/layout"
	"github.com/varshakam/omr-eval/internal/metrics"
	"github.com/varshakam/omr-eval/internal/omr"
	"github.com/varshakam/omr-eval/internal/omrerr"
	"github.com/varshakam/omr-eval/internal/queue"
	"github.com/varshakam/omr-eval/internal/storage"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fakeJobs struct {
	mu       sync.Mutex
	payloads []queue.GradePayload
}

func (f *fakeJobs) EnqueueGrade(ctx context.Context, p queue.GradePayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	return p.SubmissionID, nil
}

func (f *fakeJobs) Status(ctx context.Context, id string) (*queue.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payloads {
		if p.SubmissionID == id {
			return &queue.JobStatus{ID: id, State: "pending"}, nil
		}
	}
	return nil, queue.ErrJobNotFound
}

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Port:           "0",
		DefaultVersion: "version1",
		MaxUploadMB:    5,
	}
}

// failingStore accepts nothing, as when the audit disk is full.
type failingStore struct{}

func (failingStore) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	return "", errors.New("disk full")
}

func (failingStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	return nil, storage.ErrNotFound
}

func (failingStore) Delete(ctx context.Context, name string) error {
	return storage.ErrNotFound
}

func newTestServer(t *testing.T, cfg config.ServerConfig, jobs Jobs) *Server {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return newTestServerWithStore(t, cfg, jobs, store)
}

func newTestServerWithStore(t *testing.T, cfg config.ServerConfig, jobs Jobs, store storage.Provider) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg, err := layout.LoadDefault()
	require.NoError(t, err)

	deps := Deps{
		Grader:   omr.NewGrader(reg),
		Recorder: audit.NewRecorder(store, nil),
		Store:    store,
		Metrics:  metrics.New(),
	}
	if jobs != nil {
		deps.Jobs = jobs
	}

	s, err := New(cfg, deps)
	require.NoError(t, err)
	return s
}

// sheetPNG renders a default-layout sheet with subject1 question 1
// answered A.
func sheetPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 600, 700))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(10, 20, 30, 40), image.NewUniform(color.Black), image.Point{}, draw.Src)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartRequest builds a POST with an optional file part and fields.
func multipartRequest(t *testing.T, path, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if data != nil {
		fw, err := mw.CreateFormFile("sheet", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestSubmitSheet(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := serve(s, multipartRequest(t, "/api/sheets", "sheet1.png", sheetPNG(t), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := decodeEnvelope(t, w)
	assert.Equal(t, http.StatusOK, env.Code)

	var resp SheetResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.NotEmpty(t, resp.SubmissionID)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "version1", resp.Result.Version)
	assert.Equal(t, 1, resp.Result.Total)
	s1, ok := resp.Result.Subject("subject1")
	require.True(t, ok)
	assert.Equal(t, omr.Answer("A"), s1.Answers[0])
	assert.True(t, strings.HasPrefix(resp.ProcessedImageURL, "/processed/proc_"))
	assert.Empty(t, resp.Warning)

	img := serve(s, httptest.NewRequest(http.MethodGet, resp.ProcessedImageURL, nil))
	require.Equal(t, http.StatusOK, img.Code)
	assert.Equal(t, "image/png", img.Header().Get("Content-Type"))
	decoded, err := png.Decode(img.Body)
	require.NoError(t, err)
	assert.Equal(t, 600, decoded.Bounds().Dx())
}

func TestSubmitSheet_UploadErrors(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := serve(s, multipartRequest(t, "/api/sheets", "", nil, map[string]string{"version": "version1"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no file uploaded", decodeEnvelope(t, w).Message)

	w = serve(s, multipartRequest(t, "/api/sheets", "", []byte{}, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no selected file", decodeEnvelope(t, w).Message)

	w = serve(s, httptest.NewRequest(http.MethodPost, "/api/sheets", strings.NewReader("plain")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no file uploaded", decodeEnvelope(t, w).Message)
}

func TestSubmitSheet_PipelineErrors(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	tests := []struct {
		name   string
		data   []byte
		fields map[string]string
		status int
		code   string
	}{
		{"not an image", []byte("definitely not a png"), nil, http.StatusUnprocessableEntity, "DECODE_ERROR"},
		{"unknown version", sheetPNG(t), map[string]string{"version": "version9"}, http.StatusBadRequest, "CONFIGURATION_ERROR"},
		{"auto without reader", sheetPNG(t), map[string]string{"version": AutoVersion}, http.StatusBadRequest, "CONFIGURATION_ERROR"},
		{"narrow strip", stripPNG(t, 1, 400), nil, http.StatusUnprocessableEntity, "INVALID_IMAGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, multipartRequest(t, "/api/sheets", "sheet.png", tt.data, tt.fields))
			require.Equal(t, tt.status, w.Code, w.Body.String())

			var data map[string]interface{}
			require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &data))
			assert.Equal(t, tt.code, data["error_code"])
		})
	}
}

// stripPNG encodes a white width x height image.
func stripPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSubmitSheet_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadMB = 1
	s := newTestServer(t, cfg, nil)

	w := serve(s, multipartRequest(t, "/api/sheets", "sheet.png", make([]byte, 2<<20), nil))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	assert.Equal(t, http.StatusRequestEntityTooLarge, env.Code)
	assert.Equal(t, "upload too large", env.Message)
}

func TestSubmitSheet_AuditFailureIsWarning(t *testing.T) {
	s := newTestServerWithStore(t, testConfig(), nil, failingStore{})

	w := serve(s, multipartRequest(t, "/api/sheets", "sheet.png", sheetPNG(t), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SheetResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &resp))
	require.NotNil(t, resp.Result)
	assert.Equal(t, 1, resp.Result.Total)
	assert.Equal(t, "audit record could not be stored", resp.Warning)
	assert.Empty(t, resp.ProcessedImageURL)
}

func TestProcessedFile(t *testing.T) {
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	s := newTestServerWithStore(t, testConfig(), nil, store)

	doc := `{"total":3}`
	url, err := store.Put(context.Background(), "result_20240309_140507_sheet.json", strings.NewReader(doc), int64(len(doc)), "application/json")
	require.NoError(t, err)

	w := serve(s, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, doc, w.Body.String())
}

func TestSubmitSheet_Async(t *testing.T) {
	jobs := &fakeJobs{}
	s := newTestServer(t, testConfig(), jobs)

	w := serve(s, multipartRequest(t, "/api/sheets", "sheet.png", sheetPNG(t), map[string]string{"async": "true"}))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var job JobResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &job))
	require.Len(t, jobs.payloads, 1)
	assert.Equal(t, jobs.payloads[0].SubmissionID, job.JobID)
	assert.Equal(t, "version1", jobs.payloads[0].Version)
	assert.Equal(t, "sheet.png", jobs.payloads[0].Filename)
	assert.Equal(t, "/api/jobs/"+job.JobID, job.StatusURL)

	w = serve(s, httptest.NewRequest(http.MethodGet, job.StatusURL, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var status queue.JobStatus
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &status))
	assert.Equal(t, "pending", status.State)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitSheet_AsyncDisabled(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := serve(s, multipartRequest(t, "/api/sheets", "sheet.png", sheetPNG(t), map[string]string{"async": "true"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/abc", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListExams(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/exams", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		DefaultVersion string        `json:"default_version"`
		Exams          []ExamSummary `json:"exams"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &data))
	assert.Equal(t, "version1", data.DefaultVersion)
	require.Len(t, data.Exams, 1)
	assert.Equal(t, []SubjectSummary{
		{Name: "subject1", Questions: 20},
		{Name: "subject2", Questions: 20},
	}, data.Exams[0].Subjects)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestProcessedFile_NotFound(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/processed/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadPage(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<option value="version1" selected>`)
	assert.NotContains(t, w.Body.String(), AutoVersion)

	w = serve(s, multipartRequest(t, "/", "sheet.png", sheetPNG(t), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	assert.Contains(t, body, "Total Score:</b> 1 / 40")
	assert.Contains(t, body, "<td>subject1</td>")
	assert.Contains(t, body, "A, -, -")

	w = serve(s, multipartRequest(t, "/", "", nil, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no file uploaded", w.Body.String())
}

func TestRateLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	s := newTestServer(t, cfg, nil)

	w := serve(s, multipartRequest(t, "/api/sheets", "", nil, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, multipartRequest(t, "/api/sheets", "", nil, nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// reads are not limited
	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/exams", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(omrerr.NewDecodeError(nil)))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(omrerr.NewInvalidImageError(0, 0, "empty")))
	assert.Equal(t, http.StatusBadRequest, StatusFor(omrerr.NewConfigurationError("unknown", nil)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(omrerr.NewStorageError("write", nil)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(assert.AnError))
}

func TestNew_RequiresGrader(t *testing.T) {
	_, err := New(testConfig(), Deps{})
	assert.Error(t, err)
}
