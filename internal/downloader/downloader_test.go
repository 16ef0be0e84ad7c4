package downloader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	exitErr := errors.New("exit status 1")

	tests := []struct {
		name   string
		output string
		runErr error
		want   Outcome
	}{
		{"clean run", "Downloaded Episode 001\n", nil, OutcomeOK},
		{"no streams", "No streams available for episode 4\n", nil, OutcomeNoStreams},
		{"language missing", "No provider found for language German Dub\n", nil, OutcomeLanguageError},
		{"failure marker", "Something went wrong while extracting\n", nil, OutcomeFailed},
		{"encoding failure", "'charmap' codec can't encode character\n", nil, OutcomeFailed},
		{"nonzero exit", "partial output\n", exitErr, OutcomeFailed},
		// Markers win over the exit code in both directions.
		{"no streams with bad exit", "No streams available for episode 4\n", exitErr, OutcomeNoStreams},
		{"language error with bad exit", "No provider found for language\n", exitErr, OutcomeLanguageError},
		// NO_STREAMS beats LANGUAGE_ERROR beats FAILED when several appear.
		{"no streams beats language error", "No provider found for language\nNo streams available for episode 1\n", nil, OutcomeNoStreams},
		{"language error beats failure marker", "Something went wrong\nNo provider found for language\n", nil, OutcomeLanguageError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.output, tt.runErr))
		})
	}
}

func TestVerify(t *testing.T) {
	oldTries, oldBackoff := VerifyTries, VerifyBackoff
	VerifyTries, VerifyBackoff = 1, 0
	t.Cleanup(func() { VerifyTries, VerifyBackoff = oldTries, oldBackoff })

	folder := filepath.Join(t.TempDir(), "Demo Show")
	require.NoError(t, os.MkdirAll(folder, 0o755))

	assert.False(t, Verify(folder, 3, false))

	require.NoError(t, os.WriteFile(filepath.Join(folder, "Demo Show - Episode 003.mp4"), []byte("x"), 0o644))
	assert.True(t, Verify(folder, 3, false))
	assert.False(t, Verify(folder, 4, false))
}

func TestNewExecDefaultsBinary(t *testing.T) {
	e := NewExec("", zerolog.Nop())
	assert.Equal(t, "aniworld", e.binary)

	e = NewExec("/opt/bin/aniworld", zerolog.Nop())
	assert.Equal(t, "/opt/bin/aniworld", e.binary)
}
