package services

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lyrasync/backend/internal/logger"
)

// Stem names the separator can produce
const (
	StemVocals = "vocals"
	StemBass   = "bass"
	StemDrums  = "drums"
	StemGuitar = "guitar"
	StemPiano  = "piano"
	StemOther  = "other"
)

// SeparatorClient calls the stem separation service
type SeparatorClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSeparatorClient creates a separator client with the default timeout
func NewSeparatorClient(baseURL string) *SeparatorClient {
	return NewSeparatorClientWithTimeout(baseURL, defaultTimeout)
}

// NewSeparatorClientWithTimeout creates a separator client with a custom timeout
func NewSeparatorClientWithTimeout(baseURL string, timeout time.Duration) *SeparatorClient {
	return &SeparatorClient{
		baseURL:    baseURL,
		httpClient: newServiceHTTPClient("separator", timeout),
	}
}

// Separate asks the separator to split the track at audioPath into stems.
// On success the response maps stem name to an absolute path on the shared
// volume.
func (c *SeparatorClient) Separate(ctx context.Context, audioPath string) (map[string]string, *ServiceError) {
	if audioPath == "" {
		return nil, serviceErrorf(KindService, "no audio file provided for separation")
	}

	logger.Log.Info("Requesting stem separation",
		zap.String("audio_path", audioPath),
	)

	body, svcErr := postJSON(ctx, c.httpClient, "separator", c.baseURL+"/split", map[string]string{
		"audio_filename": audioPath,
	})
	if svcErr != nil {
		return nil, svcErr
	}

	var stems map[string]string
	if err := json.Unmarshal(body, &stems); err != nil {
		return nil, serviceErrorf(KindDecode, "failed to decode separator response: %v", err)
	}
	if msg, ok := stems["error"]; ok {
		return nil, serviceErrorf(KindService, "separator error: %s", msg)
	}
	if len(stems) == 0 {
		return nil, serviceErrorf(KindService, "separator returned no stems")
	}

	logger.Log.Info("Stem separation complete",
		zap.Int("stems", len(stems)),
	)
	return stems, nil
}
