package collector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"
	"unicode/utf16"

	"github.com/psentry/psentry/internal/platform"
)

// RunCheck executes one collection script under the check's timeout and
// returns whatever it produced. extraEnv entries ("KEY=value") carry the
// scan window settings into the script.
func RunCheck(ctx context.Context, check platform.Check, scriptContent []byte, extraEnv []string) Result {
	start := time.Now()
	result := Result{
		CheckID:     check.ID,
		CollectedAt: start.UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	cmd, cleanup, err := buildCommand(ctx, scriptContent)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		result.Error = fmt.Errorf("build command: %w", err)
		result.ExitCode = -1
		result.Duration = time.Since(start)
		result.classify()
		return result
	}

	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.Bytes()
	result.Stderr = stderr.Bytes()

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		result.Error = fmt.Errorf("timeout after %s", check.Timeout)
		result.classify()
		return result
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		result.Error = fmt.Errorf("exec: %w", err)
		result.classify()
		return result
	}

	result.ExitCode = 0
	result.FailureKind = FailureNone
	return result
}

// buildCommand picks the interpreter for this platform. Windows runs the
// bundled Windows PowerShell; elsewhere pwsh is used, which keeps fixture
// generation and script debugging possible on a dev machine.
func buildCommand(ctx context.Context, scriptContent []byte) (*exec.Cmd, func(), error) {
	if runtime.GOOS == "windows" {
		return buildPowerShellCommand(ctx, scriptContent)
	}
	return buildPwshCommand(ctx, scriptContent)
}

// buildPowerShellCommand writes the script to a temp file and runs it with
// -File. The temp file path avoids Defender ASR rules that block
// Base64-encoded commands containing event-log and WMI keywords; if the
// temp file cannot be written, -EncodedCommand is the fallback.
func buildPowerShellCommand(ctx context.Context, scriptContent []byte) (*exec.Cmd, func(), error) {
	tmpPath, err := writeTempScript(scriptContent)
	if err != nil {
		cmd := exec.CommandContext(ctx,
			"powershell.exe",
			"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass",
			"-EncodedCommand", encodeForPowerShell(string(scriptContent)),
		)
		return cmd, func() {}, nil
	}

	cmd := exec.CommandContext(ctx,
		"powershell.exe",
		"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass",
		"-File", tmpPath,
	)
	return cmd, func() { os.Remove(tmpPath) }, nil
}

func writeTempScript(scriptContent []byte) (string, error) {
	tmpFile, err := os.CreateTemp("", "psentry-*.ps1")
	if err != nil {
		return "", err
	}
	if _, err := tmpFile.Write(scriptContent); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", err
	}
	return tmpFile.Name(), nil
}

// buildPwshCommand runs PowerShell 7 with the script on stdin ("-Command -"
// is the documented stdin mode).
func buildPwshCommand(ctx context.Context, scriptContent []byte) (*exec.Cmd, func(), error) {
	cmd := exec.CommandContext(ctx, "pwsh", "-NoProfile", "-NonInteractive", "-Command", "-")
	cmd.Stdin = bytes.NewReader(scriptContent)
	return cmd, func() {}, nil
}

// encodeForPowerShell converts UTF-8 script text to the UTF-16LE Base64
// form -EncodedCommand expects.
func encodeForPowerShell(script string) string {
	runes := utf16.Encode([]rune(script))
	buf := make([]byte, len(runes)*2)
	for i, r := range runes {
		binary.LittleEndian.PutUint16(buf[i*2:], r)
	}
	return base64.StdEncoding.EncodeToString(buf)
}
