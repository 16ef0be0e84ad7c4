// Package downloader wraps the external aniworld binary behind a small
// outcome-typed interface. It classifies the child's output, enforces the
// wall-clock timeout and verifies that a file actually landed; retries
// belong to the pipeline, not here.
package downloader

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"aniloader/internal/config"
	"aniloader/internal/library"
)

// Outcome is the classified result of one downloader invocation.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeNoStreams     Outcome = "no_streams"
	OutcomeLanguageError Outcome = "language_error"
	OutcomeFailed        Outcome = "failed"
	OutcomeTimeout       Outcome = "timeout"
)

// Pacing knobs, package-level so tests can shrink them.
var (
	RunTimeout    = 600 * time.Second
	FlushDelay    = 3 * time.Second
	VerifyTries   = 5
	VerifyBackoff = 2 * time.Second
)

// Runner is the single-call downloader contract.
type Runner interface {
	Run(ctx context.Context, episodeURL string, lang config.Language, outputDir string) Outcome
}

// Exec runs the real aniworld binary.
type Exec struct {
	binary string
	logger zerolog.Logger
}

func NewExec(binary string, logger zerolog.Logger) *Exec {
	if binary == "" {
		binary = "aniworld"
	}
	return &Exec{binary: binary, logger: logger.With().Str("component", "downloader").Logger()}
}

// Run spawns the binary and classifies its combined output. On OK it sleeps
// briefly so the filesystem settles before the caller verifies.
func (e *Exec) Run(ctx context.Context, episodeURL string, lang config.Language, outputDir string) Outcome {
	runCtx, cancel := context.WithTimeout(ctx, RunTimeout)
	defer cancel()

	cmd := e.command(runCtx, episodeURL, lang, outputDir)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		e.logger.Error().Str("url", episodeURL).Dur("elapsed", elapsed).Msg("downloader timed out, child killed")
		return OutcomeTimeout
	}

	outcome := classify(buf.String(), err)
	e.logger.Info().
		Str("url", episodeURL).
		Str("language", string(lang)).
		Str("outcome", string(outcome)).
		Dur("elapsed", elapsed).
		Msg("downloader finished")

	if outcome == OutcomeOK {
		time.Sleep(FlushDelay)
	}
	return outcome
}

// failureMarkers force FAILED regardless of the exit code.
var failureMarkers = []string{
	"Something went wrong",
	"No direct link found",
	"Failed to execute any anime actions",
	"Invalid action configuration",
	"codec can't encode",
	"Unexpected download error",
}

// classify applies the marker precedence over the child's combined output.
func classify(output string, runErr error) Outcome {
	if strings.Contains(output, "No streams available for episode") {
		return OutcomeNoStreams
	}
	if strings.Contains(output, "No provider found for language") {
		return OutcomeLanguageError
	}
	for _, marker := range failureMarkers {
		if strings.Contains(output, marker) {
			return OutcomeFailed
		}
	}
	if runErr == nil {
		return OutcomeOK
	}
	return OutcomeFailed
}

// Verify polls for the downloaded file; an OK without a file on disk is a
// failure in disguise.
func Verify(seriesFolder string, episode int, isFilm bool) bool {
	for i := 0; i < VerifyTries; i++ {
		if _, ok := library.FindDownloaded(seriesFolder, episode, isFilm); ok {
			return true
		}
		time.Sleep(VerifyBackoff)
	}
	return false
}
