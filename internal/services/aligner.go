package services

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lyrasync/backend/internal/logger"
)

// AlignerClient calls the forced alignment service
type AlignerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAlignerClient creates an aligner client with the default timeout
func NewAlignerClient(baseURL string) *AlignerClient {
	return NewAlignerClientWithTimeout(baseURL, defaultTimeout)
}

// NewAlignerClientWithTimeout creates an aligner client with a custom timeout
func NewAlignerClientWithTimeout(baseURL string, timeout time.Duration) *AlignerClient {
	return &AlignerClient{
		baseURL:    baseURL,
		httpClient: newServiceHTTPClient("aligner", timeout),
	}
}

// Align force-aligns the lyrics against the vocals stem. On success it
// returns the path of the alignment JSON document the aligner wrote to the
// shared volume.
func (c *AlignerClient) Align(ctx context.Context, vocalsStemPath, lyricsPath string) (string, *ServiceError) {
	if vocalsStemPath == "" || lyricsPath == "" {
		return "", serviceErrorf(KindService, "alignment requires both a vocals stem and a lyrics file")
	}

	logger.Log.Info("Requesting forced alignment",
		zap.String("vocals", vocalsStemPath),
		zap.String("lyrics", lyricsPath),
	)

	body, svcErr := postJSON(ctx, c.httpClient, "aligner", c.baseURL+"/api/align", map[string]string{
		"vocals_stem_path": vocalsStemPath,
		"lyrics_path":      lyricsPath,
	})
	if svcErr != nil {
		return "", svcErr
	}

	var resp struct {
		AlignmentFilePath string `json:"alignment_file_path"`
		Error             string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", serviceErrorf(KindDecode, "failed to decode aligner response: %v", err)
	}
	if resp.Error != "" {
		return "", serviceErrorf(KindService, "aligner error: %s", resp.Error)
	}
	if resp.AlignmentFilePath == "" {
		return "", serviceErrorf(KindService, "aligner response missing alignment_file_path")
	}

	return resp.AlignmentFilePath, nil
}
