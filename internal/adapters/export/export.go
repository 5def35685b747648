// Package export writes catalogues in the formats consumed downstream:
// nested JSON or YAML tables, one XLSX workbook, or per-context FIM job
// manifests for the FP-growth runner.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/okian/minocc/internal/domain/model"
	"github.com/okian/minocc/pkg/metrics"
)

// Supported formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatXLSX = "xlsx"
	FormatFIM  = "fim"
)

// ErrUnknownFormat is returned for a format outside the supported set.
var ErrUnknownFormat = errors.New("unknown export format")

// Formats lists every supported format.
func Formats() []string {
	return []string{FormatJSON, FormatYAML, FormatXLSX, FormatFIM}
}

// Write encodes cat to w. The fim format writes every manifest as one JSON
// document keyed by session and context.
func Write(w io.Writer, format string, cat model.Catalogue, winlen int) error {
	var err error
	switch format {
	case FormatJSON:
		err = JSON(w, cat)
	case FormatYAML:
		err = YAML(w, cat)
	case FormatXLSX:
		err = XLSX(w, cat)
	case FormatFIM:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(Manifests(cat, winlen))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", format, err)
	}
	metrics.RecordExport(format)
	return nil
}

// ToFile writes cat to path. For the fim format path is a directory that
// receives one manifest file per context.
func ToFile(path, format string, cat model.Catalogue, winlen int) error {
	if format == FormatFIM {
		if err := WriteManifests(path, cat, winlen); err != nil {
			return err
		}
		metrics.RecordExport(format)
		return nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(f, format, cat, winlen); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// JSON writes the nested session/context/job table.
func JSON(w io.Writer, cat model.Catalogue) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cat.Table())
}

// YAML writes the nested session/context/job table.
func YAML(w io.Writer, cat model.Catalogue) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cat.Table()); err != nil {
		return err
	}
	return enc.Close()
}
