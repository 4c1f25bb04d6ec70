package services

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lyrasync/backend/internal/logger"
)

// rmsTracks are the track names the RMS analyzer understands: the original
// mix plus every stem
var rmsTracks = map[string]bool{
	"song":     true,
	StemVocals: true,
	StemBass:   true,
	StemDrums:  true,
	StemGuitar: true,
	StemPiano:  true,
	StemOther:  true,
}

// RMSInstrument is one track's loudness envelope; each value is a
// [timestamp, rms] pair
type RMSInstrument struct {
	RMSValues [][]float64 `json:"rms_values"`
}

// RMSResult is the analyzer's response: the overall envelope plus
// per-instrument envelopes. Errors lists tracks the analyzer skipped.
type RMSResult struct {
	OverallRMS  [][]float64              `json:"overall_rms"`
	Instruments map[string]RMSInstrument `json:"instruments"`
	Errors      []string                 `json:"errors,omitempty"`
}

// RMSClient calls the volume (RMS) analysis service
type RMSClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRMSClient creates an RMS client with the default timeout
func NewRMSClient(baseURL string) *RMSClient {
	return NewRMSClientWithTimeout(baseURL, defaultTimeout)
}

// NewRMSClientWithTimeout creates an RMS client with a custom timeout
func NewRMSClientWithTimeout(baseURL string, timeout time.Duration) *RMSClient {
	return &RMSClient{
		baseURL:    baseURL,
		httpClient: newServiceHTTPClient("rms", timeout),
	}
}

// AnalyzeRMS requests loudness envelopes for the given tracks. Keys are
// track names ("song" for the original mix, stem names otherwise); unknown
// names are filtered out before the call.
func (c *RMSClient) AnalyzeRMS(ctx context.Context, audioPaths map[string]string) (*RMSResult, *ServiceError) {
	if len(audioPaths) == 0 {
		return nil, serviceErrorf(KindService, "no audio or stems provided for volume analysis")
	}

	payload := make(map[string]string)
	for track, path := range audioPaths {
		if path == "" || !rmsTracks[track] {
			logger.Log.Debug("Skipping volume analysis for track",
				zap.String("track", track),
				zap.String("path", path),
			)
			continue
		}
		payload[track] = path
	}
	if len(payload) == 0 {
		return nil, serviceErrorf(KindService, "no valid audio was submitted for volume analysis")
	}

	logger.Log.Info("Requesting volume analysis",
		zap.Int("tracks", len(payload)),
	)

	body, svcErr := postJSON(ctx, c.httpClient, "rms", c.baseURL+"/api/analyze_rms", map[string]any{
		"audio_paths": payload,
	})
	if svcErr != nil {
		return nil, svcErr
	}

	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.Error != "" {
		return nil, serviceErrorf(KindService, "RMS service error: %s", probe.Error)
	}

	var result RMSResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, serviceErrorf(KindDecode, "failed to decode RMS response: %v", err)
	}
	return &result, nil
}
