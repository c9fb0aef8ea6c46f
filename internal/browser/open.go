// Package browser opens the report URL in the default browser.
package browser

import (
	"os/exec"
	"runtime"
)

// Open launches the system browser on url. Best-effort: a headless server
// or a hardened host without a browser is not an error worth failing a
// scan over.
func Open(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		// rundll32 avoids cmd.exe quoting trouble with & in query strings.
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}
