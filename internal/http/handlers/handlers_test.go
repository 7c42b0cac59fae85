package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leopacolor/internal/catalog"
	"leopacolor/internal/colorize"
	"leopacolor/internal/domain"
	"leopacolor/internal/http/handlers"
	"leopacolor/internal/http/httpapi"
	"leopacolor/internal/infra"
	"leopacolor/internal/providers/replicate"
	"leopacolor/internal/storage"
)

type fakeProvider struct {
	submit   func(ctx context.Context, infraredPath, referencePath, prompt string) (string, error)
	poll     func(ctx context.Context, predictionID string) (replicate.Prediction, error)
	download func(ctx context.Context, resultURL string) ([]byte, error)
}

func (f *fakeProvider) Submit(ctx context.Context, infraredPath, referencePath, prompt string) (string, error) {
	return f.submit(ctx, infraredPath, referencePath, prompt)
}

func (f *fakeProvider) Poll(ctx context.Context, predictionID string) (replicate.Prediction, error) {
	return f.poll(ctx, predictionID)
}

func (f *fakeProvider) Download(ctx context.Context, resultURL string) ([]byte, error) {
	return f.download(ctx, resultURL)
}

func succeedingProvider() *fakeProvider {
	return &fakeProvider{
		submit: func(context.Context, string, string, string) (string, error) { return "pred-1", nil },
		poll: func(_ context.Context, id string) (replicate.Prediction, error) {
			return replicate.Prediction{ID: id, State: replicate.StateSucceeded, ResultURL: "https://cdn.example/out.png"}, nil
		},
		download: func(context.Context, string) ([]byte, error) { return []byte("png-bytes"), nil },
	}
}

type testEnv struct {
	server *httptest.Server
	jobs   *colorize.Coordinator
}

func newTestEnv(t *testing.T, provider colorize.Provider) *testEnv {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFileStore(dir)
	require.NoError(t, err)

	cat := catalog.New(storage.NewRecordStore[domain.ReferenceImage](dir, "references"), files)
	jobStore := storage.NewRecordStore[domain.ColorizeJob](dir, "jobs")
	jobs := colorize.NewCoordinator(jobStore, cat, provider, zerolog.Nop(), colorize.Options{
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 3,
	})

	app := handlers.NewApp(zerolog.Nop(), cat, jobs)
	server := httptest.NewServer(httpapi.NewRouter(app, zerolog.Nop(), &infra.Config{DataDir: dir}))
	t.Cleanup(server.Close)
	return &testEnv{server: server, jobs: jobs}
}

func multipartBody(t *testing.T, filename, contentType string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)

	for key, value := range fields {
		require.NoError(t, mw.WriteField(key, value))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func uploadReference(t *testing.T, env *testEnv) domain.ReferenceImage {
	t.Helper()
	body, contentType := multipartBody(t, "ref.jpg", "image/jpeg", []byte("reference"), nil)
	resp, err := http.Post(env.server.URL+"/api/references", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var ref domain.ReferenceImage
	decodeJSON(t, resp, &ref)
	return ref
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var payload map[string]string
	decodeJSON(t, resp, &payload)
	return payload["message"]
}

func TestUploadAndFetchReference(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	ref := uploadReference(t, env)
	assert.NotEmpty(t, ref.ID)
	assert.Equal(t, "ref.jpg", ref.Filename)

	resp, err := http.Get(env.server.URL + "/api/references/" + ref.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got domain.ReferenceImage
	decodeJSON(t, resp, &got)
	assert.Equal(t, ref.ID, got.ID)
	assert.Equal(t, ref.Filename, got.Filename)
}

func TestListReferences(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	uploadReference(t, env)
	uploadReference(t, env)

	resp, err := http.Get(env.server.URL + "/api/references")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		References []domain.ReferenceImage `json:"references"`
	}
	decodeJSON(t, resp, &payload)
	assert.Len(t, payload.References, 2)
}

func TestUploadReferenceRejectsInvalidType(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	body, contentType := multipartBody(t, "notes.txt", "text/plain", []byte("not an image"), nil)

	resp, err := http.Post(env.server.URL+"/api/references", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, errorMessage(t, resp), "Invalid file type")
}

func TestUploadReferenceRejectsOversize(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	body, contentType := multipartBody(t, "big.jpg", "image/jpeg", bytes.Repeat([]byte("x"), 10*1024*1024+1), nil)

	resp, err := http.Post(env.server.URL+"/api/references", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, errorMessage(t, resp), "File too large")
}

func TestGetReferenceNotFound(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	resp, err := http.Get(env.server.URL + "/api/references/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteReferenceTwice(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	ref := uploadReference(t, env)

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/api/references/"+ref.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestColorizeRejectsInvalidType(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	ref := uploadReference(t, env)
	body, contentType := multipartBody(t, "infrared.txt", "text/plain", []byte("x"), map[string]string{"reference_ids": ref.ID})

	resp, err := http.Post(env.server.URL+"/api/colorize", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, errorMessage(t, resp), "Invalid file type")
}

func TestColorizeRequiresReferenceIDs(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	body, contentType := multipartBody(t, "infrared.jpg", "image/jpeg", []byte("x"), map[string]string{"reference_ids": " , "})

	resp, err := http.Post(env.server.URL+"/api/colorize", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, errorMessage(t, resp), "At least one reference image must be selected")
}

func TestColorizeRejectsUnknownReference(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	body, contentType := multipartBody(t, "infrared.jpg", "image/jpeg", []byte("x"), map[string]string{"reference_ids": "nonexistent-id"})

	resp, err := http.Post(env.server.URL+"/api/colorize", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, errorMessage(t, resp), "Reference image not found: nonexistent-id")
}

func TestColorizeFlow(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	ref := uploadReference(t, env)
	body, contentType := multipartBody(t, "infrared.jpg", "image/jpeg", []byte("infrared"), map[string]string{"reference_ids": ref.ID})

	resp, err := http.Post(env.server.URL+"/api/colorize", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var started struct {
		JobID   string `json:"job_id"`
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	decodeJSON(t, resp, &started)
	assert.NotEmpty(t, started.JobID)
	assert.Equal(t, "pending", started.Status)
	assert.Equal(t, "Colorization started", started.Message)

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.jobs.Registry().Wait(waitCtx))

	resp, err = http.Get(env.server.URL + "/api/colorize/" + started.JobID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		JobID     string `json:"job_id"`
		Status    string `json:"status"`
		ResultURL string `json:"result_url"`
	}
	decodeJSON(t, resp, &status)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, "/data/results/"+started.JobID+".png", status.ResultURL)

	resp, err = http.Get(env.server.URL + "/api/colorize/" + started.JobID + "/result")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	// The stored result is also reachable through the /data mount.
	resp, err = http.Get(env.server.URL + status.ResultURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJobStatusIsAlwaysAKnownValue(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	ref := uploadReference(t, env)
	body, contentType := multipartBody(t, "infrared.jpg", "image/jpeg", []byte("x"), map[string]string{"reference_ids": ref.ID})

	resp, err := http.Post(env.server.URL+"/api/colorize", contentType, body)
	require.NoError(t, err)
	var started struct {
		JobID string `json:"job_id"`
	}
	decodeJSON(t, resp, &started)

	resp, err = http.Get(env.server.URL + "/api/colorize/" + started.JobID)
	require.NoError(t, err)
	var status struct {
		Status domain.JobStatus `json:"status"`
	}
	decodeJSON(t, resp, &status)
	assert.True(t, status.Status.Valid(), "unrecognized status %q", status.Status)
}

func TestJobStatusNotFound(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	resp, err := http.Get(env.server.URL + "/api/colorize/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobResultNotFoundForUnknownJob(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	resp, err := http.Get(env.server.URL + "/api/colorize/missing/result")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobResultBeforeCompletion(t *testing.T) {
	failing := &fakeProvider{
		submit: func(context.Context, string, string, string) (string, error) { return "pred-1", nil },
		poll: func(_ context.Context, id string) (replicate.Prediction, error) {
			return replicate.Prediction{ID: id, State: replicate.StateFailed, Error: "boom"}, nil
		},
	}
	env := newTestEnv(t, failing)
	ref := uploadReference(t, env)
	body, contentType := multipartBody(t, "infrared.jpg", "image/jpeg", []byte("x"), map[string]string{"reference_ids": ref.ID})

	resp, err := http.Post(env.server.URL+"/api/colorize", contentType, body)
	require.NoError(t, err)
	var started struct {
		JobID string `json:"job_id"`
	}
	decodeJSON(t, resp, &started)

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.jobs.Registry().Wait(waitCtx))

	resp, err = http.Get(env.server.URL + "/api/colorize/" + started.JobID + "/result")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, errorMessage(t, resp), "Job not completed")

	resp, err = http.Get(env.server.URL + "/api/colorize/" + started.JobID)
	require.NoError(t, err)
	var status struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	decodeJSON(t, resp, &status)
	assert.Equal(t, "failed", status.Status)
	assert.Equal(t, "boom", status.ErrorMessage)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestColorLookup(t *testing.T) {
	env := newTestEnv(t, succeedingProvider())
	resp, err := http.Get(env.server.URL + "/color/RED")
	require.NoError(t, err)

	var payload map[string]string
	decodeJSON(t, resp, &payload)
	assert.Equal(t, "#FF0000", payload["hex"])

	resp, err = http.Get(env.server.URL + "/color/taupe")
	require.NoError(t, err)
	decodeJSON(t, resp, &payload)
	assert.Equal(t, "#000000", payload["hex"])
}
