package collector

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/psentry/psentry/internal/logging"
	"github.com/psentry/psentry/internal/platform"
)

// Collector fans the collection checks out in parallel and saves each
// result the moment it lands.
type Collector struct {
	scripts fs.FS
	writer  *Writer
	env     []string // PSENTRY_* scan window settings for the scripts
}

// New creates a Collector. scripts is the embedded script FS in production;
// tests inject an fstest.MapFS. env entries are appended to every script's
// environment.
func New(scripts fs.FS, writer *Writer, env []string) *Collector {
	return &Collector{
		scripts: scripts,
		writer:  writer,
		env:     env,
	}
}

// Collect runs every check concurrently. The returned slice is ordered like
// checks; a failed check occupies its slot with the failure recorded, it
// never stops the others.
func (c *Collector) Collect(ctx context.Context, checks []platform.Check) []Result {
	results := make([]Result, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(idx int, chk platform.Check) {
			defer wg.Done()
			results[idx] = c.runOne(ctx, chk)
		}(i, check)
	}
	wg.Wait()
	return results
}

func (c *Collector) runOne(ctx context.Context, chk platform.Check) Result {
	log := logging.L()
	log.Debug().Str("check", chk.ID).Msg("collect start")

	scriptContent, err := fs.ReadFile(c.scripts, chk.Script)
	if err != nil {
		log.Warn().Str("check", chk.ID).Err(err).Msg("script missing")
		return Result{
			CheckID:     chk.ID,
			Error:       fmt.Errorf("read script %s: %w", chk.Script, err),
			ExitCode:    -1,
			FailureKind: FailureUnknown,
			CollectedAt: time.Now().UTC(),
		}
	}

	result := RunCheck(ctx, chk, scriptContent, c.env)

	// Evidence-first: the raw output hits disk before anything analyzes it.
	if saveErr := c.writer.SaveResult(result); saveErr != nil {
		log.Warn().Str("check", chk.ID).Err(saveErr).Msg("save evidence")
	}

	log.Debug().
		Str("check", chk.ID).
		Dur("duration", result.Duration.Round(time.Millisecond)).
		Str("status", result.FailureKind.String()).
		Msg("collect done")
	return result
}

// BuildMeta condenses the run into the collection_meta.json document.
func BuildMeta(hostname, osName string, startedAt time.Time, results []Result) CollectionMeta {
	now := time.Now().UTC()
	meta := CollectionMeta{
		Hostname:    hostname,
		OS:          osName,
		StartedAt:   startedAt,
		CompletedAt: now,
		Duration:    now.Sub(startedAt).String(),
		TotalChecks: len(results),
	}

	for _, r := range results {
		cm := CheckMeta{
			ID:          r.CheckID,
			Duration:    r.Duration.String(),
			ExitCode:    r.ExitCode,
			TimedOut:    r.TimedOut,
			FailureKind: r.FailureKind.String(),
			HasOutput:   len(r.Stdout) > 0,
		}
		if cm.HasOutput {
			cm.SHA256 = sha256Hex(r.Stdout)
		}
		if r.Error != nil {
			cm.Error = r.Error.Error()
			if r.TimedOut {
				meta.TimedOut++
			} else {
				meta.Failed++
			}
		} else {
			meta.Succeeded++
		}
		meta.Checks = append(meta.Checks, cm)
	}

	return meta
}
