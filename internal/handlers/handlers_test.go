package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lyrasync/backend/internal/broker"
	"github.com/lyrasync/backend/internal/config"
	"github.com/lyrasync/backend/internal/jobs"
	"github.com/lyrasync/backend/internal/logger"
	"github.com/lyrasync/backend/internal/storage"
)

const testAccessCode = "test-code"

func TestMain(m *testing.M) {
	if err := logger.Initialize("error", os.DevNull); err != nil {
		panic(err)
	}
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// fakeBroker implements the Broker interface against in-memory state
type fakeBroker struct {
	pingErr    error
	enqueueErr error
	getErr     error
	jobs       map[string]*jobs.Job
	enqueued   []*jobs.Job
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{jobs: make(map[string]*jobs.Job)}
}

func (f *fakeBroker) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeBroker) EnqueueTranslation(ctx context.Context, job *jobs.Job, timeout time.Duration) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.jobs[job.ID] = job
	f.enqueued = append(f.enqueued, job)
	return nil
}

func (f *fakeBroker) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	job, ok := f.jobs[id]
	if !ok {
		return nil, broker.ErrNoSuchJob
	}
	return job, nil
}

type HandlersTestSuite struct {
	suite.Suite
	broker   *fakeBroker
	volume   *storage.Volume
	router   *gin.Engine
	handlers *Handlers
	dataDir  string
}

func (suite *HandlersTestSuite) SetupTest() {
	suite.dataDir = suite.T().TempDir()

	volume, err := storage.NewVolume(suite.dataDir)
	require.NoError(suite.T(), err)
	suite.volume = volume

	cfg := &config.Config{
		SharedDataDir: suite.dataDir,
		AccessCodes:   map[string]struct{}{testAccessCode: {}},
		JobTimeout:    5000 * time.Second,
	}

	suite.broker = newFakeBroker()
	suite.handlers = NewHandlers(cfg, suite.broker, volume)

	// Tests run without ffprobe; accept everything unless a test
	// overrides the validator
	suite.handlers.validateAudio = func(ctx context.Context, path string) error { return nil }
	suite.handlers.validateLyrics = func(path string) error { return nil }

	suite.router = gin.New()
	suite.handlers.RegisterRoutes(suite.router)
}

// multipartBody builds a submission body with the given parts
func multipartBody(t *testing.T, parts map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for field, data := range parts {
		filename := field + ".wav"
		if field == "lyrics" {
			filename = field + ".txt"
		}
		part, err := writer.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func (suite *HandlersTestSuite) submit(parts map[string][]byte, accessCode string) *httptest.ResponseRecorder {
	body, contentType := multipartBody(suite.T(), parts)
	url := "/api/translate"
	if accessCode != "" {
		url += "?access_code=" + accessCode
	}
	req := httptest.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *HandlersTestSuite) TestTranslateSuccess() {
	t := suite.T()

	w := suite.submit(map[string][]byte{
		"audio":  []byte("RIFF fake audio"),
		"lyrics": []byte("hello world"),
	}, testAccessCode)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	jobID := resp["job_id"]
	require.NotEmpty(t, jobID)

	require.Len(t, suite.broker.enqueued, 1)
	job := suite.broker.enqueued[0]
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, jobs.StatusQueued, job.Status)

	// Inputs persisted at deterministic job-scoped paths
	expectedAudio := filepath.Join(suite.dataDir, "audio", jobID+"_audio.wav")
	expectedLyrics := filepath.Join(suite.dataDir, "lyrics", jobID+"_lyrics.txt")
	assert.Equal(t, expectedAudio, job.Payload.AudioPath)
	assert.Equal(t, expectedLyrics, job.Payload.LyricsPath)
	assert.Equal(t, jobID+"_audio.wav", job.Payload.StoredAudioName)
	assert.Equal(t, "audio.wav", job.Payload.OriginalFilename)

	assert.FileExists(t, expectedAudio)
	assert.FileExists(t, expectedLyrics)
}

func (suite *HandlersTestSuite) TestTranslateAccessCodeViaHeader() {
	t := suite.T()

	body, contentType := multipartBody(t, map[string][]byte{
		"audio":  []byte("audio"),
		"lyrics": []byte("lyrics"),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/translate", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Access-Code", testAccessCode)

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
}

func (suite *HandlersTestSuite) TestTranslateInvalidAccessCode() {
	w := suite.submit(map[string][]byte{
		"audio":  []byte("audio"),
		"lyrics": []byte("lyrics"),
	}, "wrong-code")
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
}

func (suite *HandlersTestSuite) TestTranslateMissingAccessCode() {
	w := suite.submit(map[string][]byte{
		"audio":  []byte("audio"),
		"lyrics": []byte("lyrics"),
	}, "")
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
}

func (suite *HandlersTestSuite) TestTranslateBrokerUnavailable() {
	// Queue reachability is checked before anything else, including the
	// access code
	suite.broker.pingErr = errors.New("connection refused")

	w := suite.submit(map[string][]byte{
		"audio":  []byte("audio"),
		"lyrics": []byte("lyrics"),
	}, "wrong-code")
	assert.Equal(suite.T(), http.StatusServiceUnavailable, w.Code)
}

func (suite *HandlersTestSuite) TestTranslateMissingAudio() {
	w := suite.submit(map[string][]byte{"lyrics": []byte("lyrics")}, testAccessCode)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Missing audio or lyrics file.")
}

func (suite *HandlersTestSuite) TestTranslateMissingLyrics() {
	w := suite.submit(map[string][]byte{"audio": []byte("audio")}, testAccessCode)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Missing audio or lyrics file.")
}

func (suite *HandlersTestSuite) TestTranslateInvalidAudioRemovesFiles() {
	t := suite.T()
	suite.handlers.validateAudio = func(ctx context.Context, path string) error {
		return errors.New("no audio stream")
	}

	w := suite.submit(map[string][]byte{
		"audio":  []byte("not audio"),
		"lyrics": []byte("lyrics"),
	}, testAccessCode)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid audio file.")
	assert.Empty(t, suite.broker.enqueued)

	// Both persisted inputs must be rolled back
	entries, err := os.ReadDir(filepath.Join(suite.dataDir, "audio"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	entries, err = os.ReadDir(filepath.Join(suite.dataDir, "lyrics"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func (suite *HandlersTestSuite) TestTranslateInvalidLyricsRemovesFiles() {
	t := suite.T()
	suite.handlers.validateLyrics = func(path string) error {
		return errors.New("binary data")
	}

	w := suite.submit(map[string][]byte{
		"audio":  []byte("audio"),
		"lyrics": []byte{0x00, 0x01},
	}, testAccessCode)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid lyrics file.")

	entries, err := os.ReadDir(filepath.Join(suite.dataDir, "audio"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func (suite *HandlersTestSuite) TestTranslateEnqueueFailureRollsBack() {
	t := suite.T()
	suite.broker.enqueueErr = errors.New("broker write failed")

	w := suite.submit(map[string][]byte{
		"audio":  []byte("audio"),
		"lyrics": []byte("lyrics"),
	}, testAccessCode)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	entries, err := os.ReadDir(filepath.Join(suite.dataDir, "audio"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func (suite *HandlersTestSuite) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *HandlersTestSuite) TestResultsNotFound() {
	t := suite.T()
	w := suite.get("/api/results/deadbeef")

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, "Job ID not found or invalid.", resp["message"])
}

func (suite *HandlersTestSuite) TestResultsQueued() {
	suite.broker.jobs["job-1"] = &jobs.Job{ID: "job-1", Status: jobs.StatusQueued}

	w := suite.get("/api/results/job-1")
	assert.Equal(suite.T(), http.StatusAccepted, w.Code)
	assert.JSONEq(suite.T(), `{"status":"queued"}`, w.Body.String())
}

func (suite *HandlersTestSuite) TestResultsStartedWithProgress() {
	suite.broker.jobs["job-2"] = &jobs.Job{
		ID:            "job-2",
		Status:        jobs.StatusStarted,
		ProgressStage: jobs.StageProcessing,
	}

	w := suite.get("/api/results/job-2")
	assert.Equal(suite.T(), http.StatusAccepted, w.Code)
	assert.JSONEq(suite.T(), `{"status":"started","progress_stage":"stem_processing"}`, w.Body.String())
}

func (suite *HandlersTestSuite) TestResultsFinished() {
	t := suite.T()
	start := 0.1
	end := 1.0
	suite.broker.jobs["job-3"] = &jobs.Job{
		ID:     "job-3",
		Status: jobs.StatusFinished,
		Result: &jobs.Result{
			MappedResult: []jobs.MappedLine{{
				LineText:      "hello world",
				Words:         []jobs.MappedWord{{Word: "hello", Start: &start, End: &end}},
				LineStartTime: &start,
				LineEndTime:   &end,
			}},
			F0Analysis:       map[string]any{"vocals": nil},
			AudioURL:         "/api/files/job-3_song.wav",
			OriginalFilename: "song.wav",
		},
	}

	w := suite.get("/api/results/job-3")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string      `json:"status"`
		Result jobs.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "finished", resp.Status)
	assert.Equal(t, "/api/files/job-3_song.wav", resp.Result.AudioURL)
	require.Len(t, resp.Result.MappedResult, 1)
	assert.Equal(t, "hello world", resp.Result.MappedResult[0].LineText)
}

func (suite *HandlersTestSuite) TestResultsFinishedWithoutResultIsCorrupt() {
	suite.broker.jobs["job-4"] = &jobs.Job{ID: "job-4", Status: jobs.StatusFinished}

	w := suite.get("/api/results/job-4")
	assert.Equal(suite.T(), http.StatusInternalServerError, w.Code)
}

func (suite *HandlersTestSuite) TestResultsCorruptRecord() {
	suite.broker.getErr = fmt.Errorf("%w: result for job job-5: bad json", broker.ErrCorruptRecord)

	w := suite.get("/api/results/job-5")
	assert.Equal(suite.T(), http.StatusInternalServerError, w.Code)
}

func (suite *HandlersTestSuite) TestResultsFailed() {
	t := suite.T()
	suite.broker.jobs["job-6"] = &jobs.Job{
		ID:      "job-6",
		Status:  jobs.StatusFailed,
		ExcInfo: "stem separation failed: no vocals",
	}

	w := suite.get("/api/results/job-6")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":"failed","message":"stem separation failed: no vocals"}`, w.Body.String())
}

func (suite *HandlersTestSuite) TestResultsBrokerUnavailable() {
	suite.broker.getErr = errors.New("connection refused")

	w := suite.get("/api/results/job-7")
	assert.Equal(suite.T(), http.StatusServiceUnavailable, w.Code)
}

func (suite *HandlersTestSuite) TestServeFile() {
	t := suite.T()
	path := filepath.Join(suite.volume.AudioDir(), "job-8_song.wav")
	require.NoError(t, os.WriteFile(path, []byte("audio bytes"), 0644))

	w := suite.get("/api/files/job-8_song.wav")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio bytes", w.Body.String())
}

func (suite *HandlersTestSuite) TestServeFileNotFound() {
	w := suite.get("/api/files/nope.wav")
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
}

func (suite *HandlersTestSuite) delete(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodDelete, path, nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *HandlersTestSuite) TestDeleteFile() {
	t := suite.T()
	path := filepath.Join(suite.volume.AudioDir(), "job-9_song.wav")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0644))

	w := suite.delete("/api/cleanup/job-9_song.wav")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoFileExists(t, path)

	// Idempotent: deleting again still answers 200
	w = suite.delete("/api/cleanup/job-9_song.wav")
	assert.Equal(t, http.StatusOK, w.Code)
}

func (suite *HandlersTestSuite) TestDeleteFileRejectsTraversal() {
	w := suite.delete("/api/cleanup/..")
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	w = suite.delete("/api/cleanup/..%5C..%5Cetc%5Cpasswd")
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
}

func (suite *HandlersTestSuite) TestHealth() {
	w := suite.get("/api/translate/health")
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.JSONEq(suite.T(), `{"status":"OK","redis_health_check":"connected"}`, w.Body.String())
}

func (suite *HandlersTestSuite) TestHealthBrokerDown() {
	suite.broker.pingErr = errors.New("connection refused")

	w := suite.get("/api/translate/health")
	assert.Equal(suite.T(), http.StatusServiceUnavailable, w.Code)
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
