package validate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// maxLyricsSize bounds lyric uploads; real lyric sheets are a few KB
const maxLyricsSize = 1 << 20

// Lyrics checks that path holds plain UTF-8 text with no NUL bytes
func Lyrics(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", filepath.Base(path), err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", filepath.Base(path))
	}
	if info.Size() > maxLyricsSize {
		return fmt.Errorf("%s is too large for a lyrics file", filepath.Base(path))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if bytes.IndexByte(raw, 0) >= 0 {
		return fmt.Errorf("%s contains binary data", filepath.Base(path))
	}
	if !utf8.Valid(raw) {
		return fmt.Errorf("%s is not valid UTF-8 text", filepath.Base(path))
	}
	return nil
}
