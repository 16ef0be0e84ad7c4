//go:build windows

package downloader

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"aniloader/internal/config"
)

// On Windows the binary writes non-ASCII titles to the console; the code
// page has to be UTF-8 or the child dies on encode errors.
func (e *Exec) command(ctx context.Context, episodeURL string, lang config.Language, outputDir string) *exec.Cmd {
	line := fmt.Sprintf(`chcp 65001 >NUL & "%s" --language "%s" -o "%s" --episode "%s"`,
		e.binary, lang, outputDir, episodeURL)
	cmd := exec.CommandContext(ctx, "cmd", "/C", line)
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8", "PYTHONUTF8=1")
	return cmd
}
