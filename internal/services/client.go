// Package services holds thin HTTP clients for the external analyzers:
// stem separator, forced aligner, F0 analyzer, RMS analyzer and drum onset
// analyzer. Each analyzer is an opaque JSON-over-HTTP endpoint on the
// cluster network; all inputs and outputs are passed by path on the shared
// volume.
//
// Clients never return transport failures as Go errors to the pipeline.
// Every failure mode — connection, timeout, non-2xx, undecodable body, or
// an in-band {"error": ...} object — is classified into a *ServiceError so
// the worker can branch on a single discriminated shape.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lyrasync/backend/internal/logger"
	"github.com/lyrasync/backend/internal/telemetry"
)

// ErrorKind classifies how a service call failed
type ErrorKind string

const (
	KindConnection ErrorKind = "connection"
	KindTimeout    ErrorKind = "timeout"
	KindHTTP       ErrorKind = "http"
	KindDecode     ErrorKind = "decode"
	KindService    ErrorKind = "service"
)

// ServiceError is the in-band failure report for an analyzer call
type ServiceError struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Message
}

// serviceErrorf builds a classified ServiceError
func serviceErrorf(kind ErrorKind, format string, args ...any) *ServiceError {
	return &ServiceError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// defaultTimeout is sized to the slowest analyzer's observed worst case;
// separation and alignment regularly take several minutes per track
const defaultTimeout = 20 * time.Minute

// newServiceHTTPClient builds the instrumented client the analyzers share
func newServiceHTTPClient(serviceName string, timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return telemetry.NewInstrumentedHTTPClient(telemetry.HTTPClientConfig{
		ServiceName: serviceName,
		Timeout:     timeout,
	})
}

// postJSON sends a JSON POST to an analyzer and returns the raw response
// body. All failure modes are classified into a ServiceError.
func postJSON(ctx context.Context, client *http.Client, serviceName, url string, reqBody any) ([]byte, *ServiceError) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, serviceErrorf(KindDecode, "failed to encode %s request: %v", serviceName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, serviceErrorf(KindConnection, "failed to create %s request: %v", serviceName, err)
	}
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, serviceErrorf(KindTimeout, "timeout calling %s service: %v", serviceName, err)
		}
		return nil, serviceErrorf(KindConnection, "connection error calling %s service: %v", serviceName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, serviceErrorf(KindConnection, "failed to read %s response: %v", serviceName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Log.Warn("Analyzer call failed",
			zap.String("service", serviceName),
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("duration", time.Since(startTime)),
		)
		return nil, serviceErrorf(KindHTTP, "%s service returned %d: %s", serviceName, resp.StatusCode, truncate(string(respBody), 512))
	}

	logger.Log.Debug("Analyzer call completed",
		zap.String("service", serviceName),
		zap.Duration("duration", time.Since(startTime)),
	)

	return respBody, nil
}

// isTimeout reports whether err is a network timeout
func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// truncate bounds error text carried back to the job record
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
