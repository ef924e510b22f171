package bridge

import (
	"os/exec"
	"runtime"

	coreerrors "peerbridge/internal/core/errors"
)

// OpenBrowser 用系统默认程序打开 url
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeInternal, "failed to open %s", url)
	}
	go cmd.Wait()
	return nil
}
