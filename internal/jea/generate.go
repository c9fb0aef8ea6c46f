package jea

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/google/uuid"
)

// Generated points at the files Generate wrote plus the command that
// registers the endpoint on the target host.
type Generated struct {
	RoleCapabilityPath string
	SessionConfigPath  string
	RegisterCommand    string
}

const roleCapabilityTmpl = `@{
    GUID = '{{ .GUID }}'
    Author = 'psentry'
    Description = {{ psQuote .Description }}
{{- if .ModulesToImport }}
    ModulesToImport = @({{ psList .ModulesToImport }})
{{- end }}
{{- if .VisibleCmdlets }}
    VisibleCmdlets = @({{ psList .VisibleCmdlets }})
{{- end }}
{{- if .VisibleFunctions }}
    VisibleFunctions = @({{ psList .VisibleFunctions }})
{{- end }}
{{- if .VisibleProviders }}
    VisibleProviders = @({{ psList .VisibleProviders }})
{{- end }}
}
`

const sessionConfigTmpl = `@{
    SchemaVersion = '2.0.0.0'
    GUID = '{{ .GUID }}'
    Author = 'psentry'
    Description = {{ psQuote .Description }}
    SessionType = 'RestrictedRemoteServer'
    LanguageMode = 'NoLanguage'
{{- if .TranscriptDir }}
    TranscriptDirectory = {{ psQuote .TranscriptDir }}
{{- end }}
{{- if .VirtualAccount }}
    RunAsVirtualAccount = $true
{{- end }}
    RoleDefinitions = @{
{{- range .AllowedGroups }}
        {{ psQuote . }} = @{ RoleCapabilities = {{ psQuote $.RoleName }} }
{{- end }}
    }
}
`

var tmplFuncs = template.FuncMap{
	"psQuote": psQuote,
	"psList":  psList,
}

var (
	psrcTmpl = template.Must(template.New("psrc").Funcs(tmplFuncs).Parse(roleCapabilityTmpl))
	psscTmpl = template.Must(template.New("pssc").Funcs(tmplFuncs).Parse(sessionConfigTmpl))
)

// psQuote renders s as a PowerShell single-quoted literal. Single quotes
// are the only character that needs escaping, by doubling.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func psList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = psQuote(s)
	}
	return strings.Join(quoted, ", ")
}

type psrcData struct {
	GUID             string
	Description      string
	ModulesToImport  []string
	VisibleCmdlets   []string
	VisibleFunctions []string
	VisibleProviders []string
}

type psscData struct {
	GUID           string
	Description    string
	TranscriptDir  string
	VirtualAccount bool
	AllowedGroups  []string
	RoleName       string
}

// Generate writes <RoleName>.psrc and <EndpointName>.pssc under outDir and
// returns the register command for the target host. Error-level lint issues
// abort generation; warnings do not.
func Generate(spec Spec, outDir string) (*Generated, error) {
	issues := Lint(spec)
	if Blocking(issues) {
		for _, i := range issues {
			if i.Level == "error" {
				return nil, fmt.Errorf("generate: %s", i.Message)
			}
		}
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	desc := spec.Description
	if desc == "" {
		desc = fmt.Sprintf("Constrained endpoint %s generated by psentry", spec.EndpointName)
	}

	psrcPath := filepath.Join(outDir, spec.RoleName+".psrc")
	if err := renderTo(psrcPath, psrcTmpl, psrcData{
		GUID:             uuid.NewString(),
		Description:      desc,
		ModulesToImport:  spec.ModulesToImport,
		VisibleCmdlets:   spec.VisibleCmdlets,
		VisibleFunctions: spec.VisibleFunctions,
		VisibleProviders: spec.VisibleProviders,
	}); err != nil {
		return nil, err
	}

	psscPath := filepath.Join(outDir, spec.EndpointName+".pssc")
	if err := renderTo(psscPath, psscTmpl, psscData{
		GUID:           uuid.NewString(),
		Description:    desc,
		TranscriptDir:  spec.TranscriptDir,
		VirtualAccount: spec.VirtualAccount,
		AllowedGroups:  spec.AllowedGroups,
		RoleName:       spec.RoleName,
	}); err != nil {
		return nil, err
	}

	return &Generated{
		RoleCapabilityPath: psrcPath,
		SessionConfigPath:  psscPath,
		RegisterCommand: fmt.Sprintf(
			"Register-PSSessionConfiguration -Name '%s' -Path '%s' -Force",
			spec.EndpointName, psscPath),
	}, nil
}

func renderTo(path string, tmpl *template.Template, data any) error {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
