package services

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lyrasync/backend/internal/jobs"
	"github.com/lyrasync/backend/internal/logger"
)

// tonalStems are the stems worth pitch-tracking; drums carry no usable F0
var tonalStems = map[string]bool{
	StemVocals: true,
	StemBass:   true,
	StemGuitar: true,
	StemPiano:  true,
	StemOther:  true,
}

// F0Client calls the fundamental-frequency analysis service
type F0Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewF0Client creates an F0 client with the default timeout
func NewF0Client(baseURL string) *F0Client {
	return NewF0ClientWithTimeout(baseURL, defaultTimeout)
}

// NewF0ClientWithTimeout creates an F0 client with a custom timeout
func NewF0ClientWithTimeout(baseURL string, timeout time.Duration) *F0Client {
	return &F0Client{
		baseURL:    baseURL,
		httpClient: newServiceHTTPClient("f0", timeout),
	}
}

// AnalyzeF0 requests per-stem pitch curves. Stems outside the tonal set are
// filtered out before the call; when nothing tonal remains the service is
// not contacted and an info string is returned instead. Per-instrument
// values in the response may be null when no pitch was detected for that
// stem.
func (c *F0Client) AnalyzeF0(ctx context.Context, stemPaths map[string]string) (map[string]*jobs.F0Series, string, *ServiceError) {
	if len(stemPaths) == 0 {
		return nil, "", serviceErrorf(KindService, "no stem paths provided for F0 analysis")
	}

	payload := make(map[string]string)
	for instrument, path := range stemPaths {
		if path == "" || !tonalStems[instrument] {
			logger.Log.Debug("Skipping F0 analysis for stem",
				zap.String("instrument", instrument),
				zap.String("path", path),
			)
			continue
		}
		payload[instrument] = path
	}

	if len(payload) == 0 {
		return nil, "No relevant stems were submitted for F0 analysis.", nil
	}

	logger.Log.Info("Requesting F0 analysis",
		zap.Int("stems", len(payload)),
	)

	body, svcErr := postJSON(ctx, c.httpClient, "f0", c.baseURL+"/analyze_f0", map[string]any{
		"stem_paths": payload,
	})
	if svcErr != nil {
		return nil, "", svcErr
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, "", serviceErrorf(KindDecode, "failed to decode F0 response: %v", err)
	}
	if rawErr, ok := raw["error"]; ok {
		var msg string
		if err := json.Unmarshal(rawErr, &msg); err == nil && msg != "" {
			return nil, "", serviceErrorf(KindService, "F0 service error: %s", msg)
		}
	}

	analysis := make(map[string]*jobs.F0Series, len(raw))
	for instrument, value := range raw {
		var series *jobs.F0Series
		if err := json.Unmarshal(value, &series); err != nil {
			return nil, "", serviceErrorf(KindDecode, "failed to decode F0 series for %s: %v", instrument, err)
		}
		analysis[instrument] = series
	}
	return analysis, "", nil
}
