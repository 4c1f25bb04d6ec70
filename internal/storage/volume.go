// Package storage manages artifact lifecycle on the shared volume. The
// volume is the only state shared between the gateway, the workers and the
// analyzer services; every path is namespaced by job ID so jobs never
// contend on the same file.
package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lyrasync/backend/internal/logger"
)

// Volume is a handle on the shared filesystem mount
type Volume struct {
	root string
}

// NewVolume opens the shared volume and ensures the input directories exist
func NewVolume(root string) (*Volume, error) {
	v := &Volume{root: root}
	for _, dir := range []string{v.AudioDir(), v.LyricsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return v, nil
}

// AudioDir holds persisted input audio until the client deletes it
func (v *Volume) AudioDir() string {
	return filepath.Join(v.root, "audio")
}

// LyricsDir holds persisted lyrics until the cleanup job removes them
func (v *Volume) LyricsDir() string {
	return filepath.Join(v.root, "lyrics")
}

// AudioPath is the deterministic location for a job's input audio
func (v *Volume) AudioPath(jobID, filename string) string {
	return filepath.Join(v.AudioDir(), jobID+"_"+filename)
}

// LyricsPath is the deterministic location for a job's input lyrics
func (v *Volume) LyricsPath(jobID, filename string) string {
	return filepath.Join(v.LyricsDir(), jobID+"_"+filename)
}

// SaveUpload streams an uploaded multipart file to destPath. Uploads can be
// tens of megabytes, so the body is copied, not buffered.
func (v *Volume) SaveUpload(file *multipart.FileHeader, destPath string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	return nil
}

// Remove deletes a path if present. Directories are removed recursively;
// a missing path is not an error.
func (v *Volume) Remove(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}

// RemoveBestEffort deletes each path, logging failures instead of
// propagating them. Used for post-error teardown where the original error
// matters more than the cleanup's.
func (v *Volume) RemoveBestEffort(paths ...string) {
	for _, path := range paths {
		if err := v.Remove(path); err != nil {
			logger.Log.Warn("Failed to remove artifact",
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}
}
