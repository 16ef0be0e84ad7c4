//go:build !windows

package downloader

import (
	"context"
	"os"
	"os/exec"

	"aniloader/internal/config"
)

func (e *Exec) command(ctx context.Context, episodeURL string, lang config.Language, outputDir string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, e.binary, "--language", string(lang), "-o", outputDir, "--episode", episodeURL)
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8", "PYTHONUTF8=1")
	return cmd
}
