package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lyrasync/backend/internal/logger"
)

// DrumOnset is one detected percussive event with its spectral features
type DrumOnset struct {
	OnsetTime         float64   `json:"onset_time"`
	Duration          float64   `json:"duration"`
	RelativeVolume    float64   `json:"relative_volume"`
	DominantFrequency float64   `json:"dominant_frequency"`
	SpectralCentroid  float64   `json:"spectral_centroid"`
	SpectralRolloff   float64   `json:"spectral_rolloff"`
	SpectralFlux      float64   `json:"spectral_flux"`
	MFCCs             []float64 `json:"mfccs"`
}

// DrumClient calls the drum onset analysis service
type DrumClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDrumClient creates a drum analysis client with the default timeout
func NewDrumClient(baseURL string) *DrumClient {
	return NewDrumClientWithTimeout(baseURL, defaultTimeout)
}

// NewDrumClientWithTimeout creates a drum analysis client with a custom timeout
func NewDrumClientWithTimeout(baseURL string, timeout time.Duration) *DrumClient {
	return &DrumClient{
		baseURL:    baseURL,
		httpClient: newServiceHTTPClient("drums", timeout),
	}
}

// AnalyzeDrums requests onset detection for the drums stem. The analyzer
// responds with either an onset array or an {"error": ...} object.
func (c *DrumClient) AnalyzeDrums(ctx context.Context, drumsPath string) ([]DrumOnset, *ServiceError) {
	if drumsPath == "" {
		return nil, serviceErrorf(KindService, "no drums stem provided for onset analysis")
	}

	logger.Log.Info("Requesting drum onset analysis",
		zap.String("drums_path", drumsPath),
	)

	body, svcErr := postJSON(ctx, c.httpClient, "drums", c.baseURL+"/analyze_drums", map[string]string{
		"drums_path": drumsPath,
	})
	if svcErr != nil {
		return nil, svcErr
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var probe struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(trimmed, &probe); err == nil && probe.Error != "" {
			return nil, serviceErrorf(KindService, "drum service error: %s", probe.Error)
		}
		return nil, serviceErrorf(KindDecode, "unexpected drum response shape")
	}

	var onsets []DrumOnset
	if err := json.Unmarshal(trimmed, &onsets); err != nil {
		return nil, serviceErrorf(KindDecode, "failed to decode drum response: %v", err)
	}
	return onsets, nil
}
