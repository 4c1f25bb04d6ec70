package broker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lyrasync/backend/internal/jobs"
	"github.com/lyrasync/backend/internal/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize("error", os.DevNull); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// QueueTestSuite exercises the broker against a real Redis. The suite
// skips when no Redis is reachable, so unit-only runs stay green.
type QueueTestSuite struct {
	suite.Suite
	client *Client
	ctx    context.Context
}

func (suite *QueueTestSuite) SetupSuite() {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("REDIS_PORT")

	client, err := NewClient(host, port, os.Getenv("REDIS_PASSWORD"))
	if err != nil {
		suite.T().Skipf("Skipping broker tests: Redis not available (%v)", err)
		return
	}
	suite.client = client
	suite.ctx = context.Background()
}

func (suite *QueueTestSuite) TearDownSuite() {
	if suite.client != nil {
		_ = suite.client.Close()
	}
}

func (suite *QueueTestSuite) newJob() *jobs.Job {
	return &jobs.Job{
		ID:        uuid.New().String(),
		Status:    jobs.StatusQueued,
		CreatedAt: time.Now().UTC(),
		Payload: jobs.Payload{
			AudioPath:        "/shared-data/audio/x_song.wav",
			LyricsPath:       "/shared-data/lyrics/x_song.txt",
			StoredAudioName:  "x_song.wav",
			OriginalFilename: "song.wav",
		},
	}
}

func (suite *QueueTestSuite) TestEnqueueDequeueRoundTrip() {
	t := suite.T()
	job := suite.newJob()

	require.NoError(t, suite.client.EnqueueTranslation(suite.ctx, job, 5000*time.Second))

	got, err := suite.client.DequeueTranslation(suite.ctx, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, jobs.StatusQueued, got.Status)
	assert.Equal(t, job.Payload, got.Payload)

	timeout, err := suite.client.JobTimeout(suite.ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 5000*time.Second, timeout)
}

func (suite *QueueTestSuite) TestStatusLifecycle() {
	t := suite.T()
	job := suite.newJob()
	require.NoError(t, suite.client.EnqueueTranslation(suite.ctx, job, time.Minute))

	require.NoError(t, suite.client.MarkStarted(suite.ctx, job.ID))
	require.NoError(t, suite.client.SetProgress(suite.ctx, job.ID, jobs.StageSeparating))

	got, err := suite.client.GetJob(suite.ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusStarted, got.Status)
	assert.Equal(t, jobs.StageSeparating, got.ProgressStage)

	result := &jobs.Result{
		MappedResult:     []jobs.MappedLine{{LineText: "hello", Words: []jobs.MappedWord{{Word: "hello"}}}},
		F0Analysis:       map[string]any{"vocals": nil},
		AudioURL:         "/api/files/x_song.wav",
		OriginalFilename: "song.wav",
	}
	require.NoError(t, suite.client.MarkFinished(suite.ctx, job.ID, result))

	got, err = suite.client.GetJob(suite.ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFinished, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "/api/files/x_song.wav", got.Result.AudioURL)
	assert.NotNil(t, got.FinishedAt)

	// Terminal jobs never move backward
	err = suite.client.MarkStarted(suite.ctx, job.ID)
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func (suite *QueueTestSuite) TestMarkFailedRecordsExcInfo() {
	t := suite.T()
	job := suite.newJob()
	require.NoError(t, suite.client.EnqueueTranslation(suite.ctx, job, time.Minute))
	require.NoError(t, suite.client.MarkFailed(suite.ctx, job.ID, "stem separation failed"))

	got, err := suite.client.GetJob(suite.ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Equal(t, "stem separation failed", got.ExcInfo)
}

func (suite *QueueTestSuite) TestGetJobUnknownID() {
	_, err := suite.client.GetJob(suite.ctx, "deadbeef")
	assert.ErrorIs(suite.T(), err, ErrNoSuchJob)
}

func (suite *QueueTestSuite) TestCleanupQueueRoundTrip() {
	t := suite.T()
	payload := jobs.CleanupPayload{
		LyricsPath:    "/shared-data/lyrics/x_song.txt",
		AlignmentPath: "/shared-data/aligned/x_song.json",
		StemsDir:      "/shared-data/separator_output/model/x_song",
	}
	require.NoError(t, suite.client.EnqueueCleanup(suite.ctx, payload))

	got, err := suite.client.DequeueCleanup(suite.ctx, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, payload, *got)
}

func (suite *QueueTestSuite) TestDequeueTimeoutReturnsNil() {
	got, err := suite.client.DequeueCleanup(suite.ctx, time.Second)
	require.NoError(suite.T(), err)
	assert.Nil(suite.T(), got)
}

func TestQueueTestSuite(t *testing.T) {
	suite.Run(t, new(QueueTestSuite))
}
