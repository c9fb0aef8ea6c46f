package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/psentry/psentry/internal/platform"
)

// LoadFixtures reads fixture JSON files and creates synthetic Results, one
// per check. Missing fixture files produce failed results rather than an
// error so a partial fixture set still exercises the pipeline.
func LoadFixtures(fixtureDir string, checks []platform.Check) ([]Result, error) {
	info, err := os.Stat(fixtureDir)
	if err != nil {
		return nil, fmt.Errorf("fixture directory not found: %s", fixtureDir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fixture path is not a directory: %s", fixtureDir)
	}

	absBase, err := filepath.Abs(fixtureDir)
	if err != nil {
		return nil, fmt.Errorf("resolve fixture path: %w", err)
	}

	var results []Result
	for _, check := range checks {
		path := filepath.Join(fixtureDir, check.ID+".json")

		// Prevent path traversal: resolved path must stay within fixtureDir
		absPath, err := filepath.Abs(path)
		if err != nil || !strings.HasPrefix(absPath, absBase) {
			results = append(results, Result{
				CheckID:     check.ID,
				Error:       fmt.Errorf("invalid fixture path for %s", check.ID),
				FailureKind: FailureUnknown,
			})
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			results = append(results, Result{
				CheckID:     check.ID,
				Error:       fmt.Errorf("fixture not found: %s", path),
				FailureKind: FailureNotFound,
			})
			continue
		}
		results = append(results, Result{
			CheckID:     check.ID,
			Stdout:      data,
			ExitCode:    0,
			CollectedAt: time.Now().UTC(),
		})
	}
	return results, nil
}
