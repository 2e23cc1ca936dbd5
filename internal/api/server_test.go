package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/press-directory/internal/batch"
	"github.com/sells-group/press-directory/internal/model"
	"github.com/sells-group/press-directory/internal/snapshot"
)

type fakeSearcher struct {
	gotFilter model.SearchFilter
	result    *model.SearchResult
	err       error
}

func (f *fakeSearcher) Search(_ context.Context, filter model.SearchFilter) (*model.SearchResult, error) {
	f.gotFilter = filter
	return f.result, f.err
}

type fakeUploader struct {
	gotMeta    batch.Meta
	gotPayload []byte
	batchID    string
	err        error
}

func (f *fakeUploader) LoadAsync(_ context.Context, r io.Reader, meta batch.Meta) (string, error) {
	f.gotMeta = meta
	f.gotPayload, _ = io.ReadAll(r)
	return f.batchID, f.err
}

type fakeBatchStore struct {
	progress *model.BatchProgress
	batches  []model.UploadBatch
	deleted  int64
	err      error
}

func (f *fakeBatchStore) Progress(context.Context, string) (*model.BatchProgress, error) {
	return f.progress, f.err
}

func (f *fakeBatchStore) List(context.Context, int) ([]model.UploadBatch, error) {
	return f.batches, f.err
}

func (f *fakeBatchStore) Delete(context.Context, string) (int64, error) {
	return f.deleted, f.err
}

type fakeReindexer struct {
	pushed int
	err    error
}

func (f *fakeReindexer) SyncAll(context.Context) (int, error) { return f.pushed, f.err }

func readyManager() *snapshot.Manager {
	return snapshot.NewManager(func(context.Context) (*snapshot.Snapshot, error) {
		site := "https://alpha.example.jp"
		return snapshot.BuildFromReleases([]model.CompanyRelease{{
			ID:             1,
			CompanyName:    "アルファ株式会社",
			CompanyWebsite: &site,
			Industry:       "IT",
			DeliveredAt:    time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		}}), nil
	}, 0)
}

func newTestServer(t *testing.T, searcher Searcher, uploader Uploader, batches BatchStore, reindex Reindexer) *httptest.Server {
	t.Helper()
	srv := NewServer(searcher, uploader, batches, reindex, readyManager(), nil, Config{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestSearchEndpoint(t *testing.T) {
	searcher := &fakeSearcher{result: &model.SearchResult{
		Companies:    []model.CompanyRelease{{ID: 1, CompanyName: "アルファ株式会社"}},
		Cache:        model.CacheMiss,
		SearchMethod: model.MethodMeilisearch,
	}}
	ts := newTestServer(t, searcher, nil, nil, nil)

	body := `{"companyName":"アルファ","industry":["IT"],"page":2}`
	resp, err := http.Post(ts.URL+"/api/search", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "アルファ", searcher.gotFilter.CompanyName)
	assert.Equal(t, []string{"IT"}, searcher.gotFilter.Industries)
	assert.Equal(t, 2, searcher.gotFilter.Page)

	var result model.SearchResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, model.CacheMiss, result.Cache)
	require.Len(t, result.Companies, 1)
}

func TestSearchEndpoint_BadJSONDegradesToEmptyFilter(t *testing.T) {
	searcher := &fakeSearcher{result: &model.SearchResult{Companies: []model.CompanyRelease{}}}
	ts := newTestServer(t, searcher, nil, nil, nil)

	resp, err := http.Post(ts.URL+"/api/search", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.SearchFilter{}, searcher.gotFilter)
}

func TestSearchEndpoint_Exhausted(t *testing.T) {
	searcher := &fakeSearcher{
		result: &model.SearchResult{Companies: []model.CompanyRelease{}, Error: "search unavailable"},
		err:    eris.New("everything is down"),
	}
	ts := newTestServer(t, searcher, nil, nil, nil)

	resp, err := http.Post(ts.URL+"/api/search", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var result model.SearchResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "search unavailable", result.Error)
}

func multipartUpload(t *testing.T, filename, contents string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, contents)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("uploadedBy", "ops"))
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadEndpoint(t *testing.T) {
	uploader := &fakeUploader{batchID: "batch-123"}
	ts := newTestServer(t, nil, uploader, nil, nil)

	buf, contentType := multipartUpload(t, "releases.csv", "header\nrow\n")
	resp, err := http.Post(ts.URL+"/api/upload", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "batch-123", body["batchId"])
	assert.Equal(t, model.StatusProcessing, body["status"])

	assert.Equal(t, "releases.csv", uploader.gotMeta.Filename)
	assert.Equal(t, "ops", uploader.gotMeta.UploadedBy)
	assert.Equal(t, "header\nrow\n", string(uploader.gotPayload))
}

func TestUploadEndpoint_RejectsNonCSV(t *testing.T) {
	ts := newTestServer(t, nil, &fakeUploader{}, nil, nil)

	buf, contentType := multipartUpload(t, "releases.xlsx", "binary")
	resp, err := http.Post(ts.URL+"/api/upload", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadEndpoint_MissingFile(t *testing.T) {
	ts := newTestServer(t, nil, &fakeUploader{}, nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("uploadedBy", "ops"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProgressEndpoint(t *testing.T) {
	store := &fakeBatchStore{progress: &model.BatchProgress{
		BatchID: "batch-123", Processed: 80, Total: 100, Errors: 2, Status: model.StatusProcessing,
	}}
	ts := newTestServer(t, nil, nil, store, nil)

	resp, err := http.Get(ts.URL + "/api/upload/batch-123/progress")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var p model.BatchProgress
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, 80, p.Processed)
	assert.Equal(t, model.StatusProcessing, p.Status)
}

func TestProgressEndpoint_NotFound(t *testing.T) {
	ts := newTestServer(t, nil, nil, &fakeBatchStore{err: batch.ErrNotFound}, nil)

	resp, err := http.Get(ts.URL + "/api/upload/nope/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteBatchEndpoint(t *testing.T) {
	store := &fakeBatchStore{deleted: 250}
	ts := newTestServer(t, nil, nil, store, nil)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/upload/batch-123", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(250), body["deletedCompanies"])
}

func TestListBatchesEndpoint(t *testing.T) {
	store := &fakeBatchStore{batches: []model.UploadBatch{
		{ID: "b1", Filename: "a.csv", Status: model.StatusCompleted},
	}}
	ts := newTestServer(t, nil, nil, store, nil)

	resp, err := http.Get(ts.URL + "/api/batches?limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Batches []model.UploadBatch `json:"batches"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Batches, 1)
	assert.Equal(t, "a.csv", body.Batches[0].Filename)
}

func TestListBatchesEndpoint_InvalidLimit(t *testing.T) {
	ts := newTestServer(t, nil, nil, &fakeBatchStore{}, nil)

	resp, err := http.Get(ts.URL + "/api/batches?limit=zero")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReindexEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil, &fakeReindexer{pushed: 1234})

	resp, err := http.Post(ts.URL+"/api/reindex", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(1234), body["documents"])
}

func TestReindexEndpoint_NotConfigured(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil, nil)

	resp, err := http.Post(ts.URL+"/api/reindex", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil, nil)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "disabled", body["engine"])
}

func TestFacetsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil, nil)

	resp, err := http.Get(ts.URL + "/api/facets")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Total    int            `json:"total"`
		Industry map[string]int `json:"industry"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, 1, body.Industry["IT"])
}
