package report

import (
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/psentry/psentry/internal/threat"
)

//go:embed templates/*.tmpl
var templates embed.FS

// Renderer generates the HTML report.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded HTML template.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"severityClass": func(s threat.Severity) string {
			switch s {
			case threat.SeverityCritical:
				return "sev-critical"
			case threat.SeverityHigh:
				return "sev-high"
			case threat.SeverityMedium:
				return "sev-medium"
			case threat.SeverityLow:
				return "sev-low"
			default:
				return "sev-info"
			}
		},
		"verdictClass": func(v Verdict) string {
			switch v {
			case VerdictAlert:
				return "banner-alert"
			case VerdictReview:
				return "banner-review"
			default:
				return "banner-clean"
			}
		},
		"sigmaLevelClass": func(level string) string {
			switch strings.ToLower(level) {
			case "critical":
				return "sev-critical"
			case "high":
				return "sev-high"
			case "medium":
				return "sev-medium"
			case "low":
				return "sev-low"
			default:
				return "sev-info"
			}
		},
		"categoryLabel": func(category string) string {
			return strings.ReplaceAll(category, "_", " ")
		},
		"join": strings.Join,
	}

	tmpl, err := template.New("report.html.tmpl").Funcs(funcMap).ParseFS(templates, "templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// RenderString renders the report to a string, used by serve mode.
func (r *Renderer) RenderString(data ReportData) (string, error) {
	var buf strings.Builder
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// Render writes report.html into outputDir and returns its path.
func (r *Renderer) Render(data ReportData, outputDir string) (string, error) {
	path := filepath.Join(outputDir, "report.html")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	if err := r.tmpl.Execute(f, data); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return path, nil
}
