// Package migrations holds the SQL that creates vector collections. Collection
// scripts are templates rendered with a Params value.
package migrations

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed sqlite/*.sql
var SQLite embed.FS

//go:embed postgres/*.sql
var Postgres embed.FS

// Params fills the collection templates. Table must already be a validated
// identifier.
type Params struct {
	Table          string
	Dimension      int
	OpClass        string
	Indexed        bool
	M              int
	EfConstruction int
}

// Render reads name from fsys and, when params is non-nil, executes it as a
// template.
func Render(fsys embed.FS, name string, params *Params) (string, error) {
	data, err := fsys.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("read migration: %w", err)
	}
	if params == nil {
		return string(data), nil
	}

	tmpl, err := template.New(name).Parse(string(data))
	if err != nil {
		return "", fmt.Errorf("parse migration %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("render migration %s: %w", name, err)
	}
	return buf.String(), nil
}
