// Package dashboard renders Grafana dashboards for the birdnest metrics and
// the GreptimeDB violation table.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed *.json.tmpl
var templates embed.FS

// DefaultTable is used when GREPTIMEDB_TABLE is unset.
const DefaultTable = "ndz_violations"

// Render parses dashboard templates and writes rendered dashboards to outDir.
// Datasource UIDs come from the environment.
func Render(outDir string) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
		"table": func() string {
			if t := os.Getenv("GREPTIMEDB_TABLE"); t != "" {
				return t
			}
			return DefaultTable
		},
	}

	names, err := templates.ReadDir(".")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, e := range names {
		name := e.Name()
		t, err := template.New(name).Funcs(funcMap).ParseFS(templates, name)
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(name, ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, nil); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
