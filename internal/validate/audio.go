// Package validate inspects uploaded files before a job is accepted.
// Audio is checked by shelling out to ffprobe, the same container/stream
// inspection the analyzers rely on; WAV uploads additionally get a header
// decode. Lyrics must be plain UTF-8 text.
package validate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

// probeTimeout bounds the ffprobe subprocess
const probeTimeout = 30 * time.Second

// Audio checks that path holds a decodable audio stream. ffprobe must find
// at least one audio stream; anything else (text, images, truncated files)
// is rejected.
func Audio(ctx context.Context, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		if err := wavHeader(path); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("audio inspection failed: %s", strings.TrimSpace(stderr.String()))
	}
	if strings.TrimSpace(stdout.String()) != "audio" {
		return fmt.Errorf("no audio stream found in %s", filepath.Base(path))
	}
	return nil
}

// wavHeader rejects WAV files whose RIFF header does not decode
func wavHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if !wav.NewDecoder(f).IsValidFile() {
		return fmt.Errorf("%s is not a valid WAV file", filepath.Base(path))
	}
	return nil
}
