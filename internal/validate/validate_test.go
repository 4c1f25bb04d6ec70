package validate

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// writeWAV encodes a short PCM clip so header checks have a real file
func writeWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, 44100, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 44100},
		Data:           make([]int, 4410),
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	return path
}

func TestWAVHeaderValid(t *testing.T) {
	path := writeWAV(t)
	assert.NoError(t, wavHeader(path))
}

func TestWAVHeaderRejectsGarbage(t *testing.T) {
	path := writeFile(t, "fake.wav", []byte("this is not a wav file"))
	assert.Error(t, wavHeader(path))
}

func TestAudioRejectsTextFile(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skipf("Skipping audio inspection test: ffprobe not available (%v)", err)
	}

	path := writeFile(t, "notes.wav", []byte("just some text"))
	assert.Error(t, Audio(context.Background(), path))
}

func TestAudioAcceptsWAV(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skipf("Skipping audio inspection test: ffprobe not available (%v)", err)
	}

	path := writeWAV(t)
	assert.NoError(t, Audio(context.Background(), path))
}

func TestLyricsValid(t *testing.T) {
	path := writeFile(t, "lyrics.txt", []byte("hello world\ntest sentence\n"))
	assert.NoError(t, Lyrics(path))
}

func TestLyricsRejectsEmpty(t *testing.T) {
	path := writeFile(t, "empty.txt", nil)
	assert.Error(t, Lyrics(path))
}

func TestLyricsRejectsBinary(t *testing.T) {
	path := writeFile(t, "binary.txt", []byte{0x00, 0x01, 0x02, 0x03})
	assert.Error(t, Lyrics(path))
}

func TestLyricsRejectsInvalidUTF8(t *testing.T) {
	path := writeFile(t, "latin1.txt", []byte{0xff, 0xfe, 0x68, 0x69})
	assert.Error(t, Lyrics(path))
}

func TestLyricsRejectsMissingFile(t *testing.T) {
	assert.Error(t, Lyrics(filepath.Join(t.TempDir(), "missing.txt")))
}
