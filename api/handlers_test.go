package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"converter/admission"
	"converter/config"
	"converter/format"
	"converter/metrics"
	"converter/models"
	"converter/store"
)

type fakeStore struct {
	created []*models.ConversionRecord
	records map[string]*models.ConversionRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*models.ConversionRecord)}
}

func (f *fakeStore) Create(ctx context.Context, rec *models.ConversionRecord) error {
	rec.Status = models.StatusQueued
	f.created = append(f.created, rec)
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*models.ConversionRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

type fakeEnqueuer struct {
	jobs []*models.Job
	err  error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, job *models.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeUploader struct {
	puts map[string][]byte
	err  error
}

func newFakeUploader() *fakeUploader { return &fakeUploader{puts: make(map[string][]byte)} }

func (f *fakeUploader) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.puts[key] = body
	return "https://bucket.example.com/" + key, nil
}

type fixedUsage int

func (n fixedUsage) CountMonthlyUsage(ctx context.Context, ownerID string) (int, error) {
	return int(n), nil
}

type env struct {
	server *Server
	store  *fakeStore
	queue  *fakeEnqueuer
	blobs  *fakeUploader
}

func newEnv(t *testing.T, usage admission.UsageCounter) *env {
	t.Helper()

	cfg := &config.Config{
		MaxRetries:         3,
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	}
	reg := format.NewRegistry()
	rules := format.NewRules(reg)
	m := metrics.New()
	fs := newFakeStore()
	fq := &fakeEnqueuer{}
	fu := newFakeUploader()

	gate := admission.NewGate(reg, rules, usage, m)
	return &env{
		server: NewServer(cfg, gate, fs, fq, fu, reg, rules, m),
		store:  fs,
		queue:  fq,
		blobs:  fu,
	}
}

var pngPayload = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{0x42}, 64)...)

func convertRequest(t *testing.T, source, target string, payload []byte, headers map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "input."+source)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}
	_ = mw.WriteField("sourceFormat", source)
	_ = mw.WriteField("targetFormat", target)
	_ = mw.WriteField("quality", "85")
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/api/convert", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestConvert_AcceptedAndQueued(t *testing.T) {
	e := newEnv(t, nil)
	h := e.server.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, convertRequest(t, "png", "jpg", pngPayload, map[string]string{
		"X-User-ID":   "user-1",
		"X-User-Tier": "starter",
	}))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var rec models.ConversionRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rec.ID == "" || rec.Status != models.StatusQueued {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if len(e.queue.jobs) != 1 {
		t.Fatalf("expected one enqueued job, got %d", len(e.queue.jobs))
	}
	job := e.queue.jobs[0]
	if job.RecordID != rec.ID || job.Priority != models.PriorityAuthenticated {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.MaxAttempts != 3 || job.Tier != models.TierStarter {
		t.Fatalf("job missing limits: %+v", job)
	}
	if got := e.blobs.puts[job.InputKey]; !bytes.Equal(got, pngPayload) {
		t.Fatalf("staged payload mismatch: %d bytes", len(got))
	}
	if job.OutputKey == job.InputKey {
		t.Fatal("output key must differ from input key")
	}
}

func TestConvert_AnonymousGetsLowPriority(t *testing.T) {
	e := newEnv(t, nil)

	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, convertRequest(t, "png", "jpg", pngPayload, nil))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if e.queue.jobs[0].Priority != models.PriorityAnonymous {
		t.Fatalf("anonymous job got priority %d", e.queue.jobs[0].Priority)
	}
}

func TestConvert_UnsupportedPairRejected(t *testing.T) {
	e := newEnv(t, nil)

	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, convertRequest(t, "png", "docx", pngPayload, nil))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}
	if len(e.queue.jobs) != 0 || len(e.store.created) != 0 || len(e.blobs.puts) != 0 {
		t.Fatal("rejected request must leave no side effects")
	}
}

func TestConvert_ContentMismatchRejected(t *testing.T) {
	e := newEnv(t, nil)

	// Declared png, actually a PDF.
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, convertRequest(t, "png", "jpg", []byte("%PDF-1.4 not a png"), nil))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}
}

func TestConvert_QuotaExceeded(t *testing.T) {
	e := newEnv(t, fixedUsage(200)) // free tier quota is 200

	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, convertRequest(t, "png", "jpg", pngPayload, map[string]string{
		"X-User-ID": "user-1",
	}))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
}

func TestConvert_SourceFormatInferredFromFilename(t *testing.T) {
	e := newEnv(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "photo.png")
	_, _ = part.Write(pngPayload)
	_ = mw.WriteField("targetFormat", "webp")
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/api/convert", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if e.queue.jobs[0].SourceFormat != "png" {
		t.Fatalf("inferred source = %q", e.queue.jobs[0].SourceFormat)
	}
}

func TestConvert_QueueFailureReportedAsUnavailable(t *testing.T) {
	e := newEnv(t, nil)
	e.queue.err = errors.New("redis down")

	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, convertRequest(t, "png", "jpg", pngPayload, nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestGetConversion(t *testing.T) {
	e := newEnv(t, nil)
	e.store.records["rec-1"] = &models.ConversionRecord{
		ID: "rec-1", SourceFormat: "docx", TargetFormat: "pdf", Status: models.StatusCompleted,
		OutputURL: "https://bucket.example.com/converted/rec-1.pdf",
	}
	h := e.server.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/conversions/rec-1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var rec models.ConversionRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rec.Status != models.StatusCompleted || rec.OutputURL == "" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/conversions/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestListFormats(t *testing.T) {
	e := newEnv(t, nil)

	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/api/formats", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp struct {
		Total   int                        `json:"total"`
		Formats map[string][]format.Format `json:"formats"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 117 {
		t.Fatalf("total = %d, want 117", resp.Total)
	}
	if len(resp.Formats["image"]) != 50 {
		t.Fatalf("image formats = %d, want 50", len(resp.Formats["image"]))
	}
}

func TestFormatsByCategory(t *testing.T) {
	e := newEnv(t, nil)
	h := e.server.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/formats/document", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/formats/videos", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown category", rr.Code)
	}
}

func TestFormatTargets(t *testing.T) {
	e := newEnv(t, nil)

	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/api/formats/png/targets", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp struct {
		Targets []string `json:"targets"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	found := false
	for _, tgt := range resp.Targets {
		if tgt == "jpg" {
			found = true
		}
		if tgt == "png" {
			t.Fatal("targets must not include the source itself")
		}
	}
	if !found {
		t.Fatalf("expected jpg among png targets, got %v", resp.Targets)
	}
}

func TestRateLimiter(t *testing.T) {
	cfg := &config.Config{MaxRetries: 3, RateLimitPerSecond: 0, RateLimitBurst: 0}
	reg := format.NewRegistry()
	rules := format.NewRules(reg)
	m := metrics.New()
	srv := NewServer(cfg, admission.NewGate(reg, rules, nil, m), newFakeStore(), &fakeEnqueuer{}, newFakeUploader(), reg, rules, m)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, convertRequest(t, "png", "jpg", pngPayload, nil))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if m.Snapshot().RateLimited != 1 {
		t.Fatal("expected the rate-limited counter to increment")
	}
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)

	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}
