package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"ACRScanner/internal/config"
	"ACRScanner/internal/domain"
	"ACRScanner/internal/ports"
)

// Output file base name; the extension follows the format.
const baseName = "openacr-report"

// FileWriter emits the document into a run directory in each configured format.
type FileWriter struct {
	dir    string
	cfg    config.ReportConfig
	now    func() time.Time
	logger *slog.Logger
}

var _ ports.ReportWriter = (*FileWriter)(nil)

// NewFileWriter targets dir; formats default to yaml and json.
func NewFileWriter(dir string, cfg config.ReportConfig, logger *slog.Logger) *FileWriter {
	if len(cfg.Formats) == 0 {
		cfg.Formats = []string{"yaml", "json"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWriter{dir: dir, cfg: cfg, now: time.Now, logger: logger.With("component", "report")}
}

// WriteReport renders judgments and returns the written paths.
func (w *FileWriter) WriteReport(ctx context.Context, judgments []domain.Judgment) ([]string, error) {
	if len(judgments) == 0 {
		return nil, fmt.Errorf("write report: no consolidated judgments: %w", ports.ErrMissingInput)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("write report: create dir: %w", err)
	}

	doc := Emit(w.cfg, judgments, w.now())
	paths := make([]string, 0, len(w.cfg.Formats))
	for _, format := range w.cfg.Formats {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		raw, ext, err := encode(doc, format)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(w.dir, baseName+ext)
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return paths, fmt.Errorf("write report %s: %w", path, err)
		}
		w.logger.Info("report generated", "format", format, "path", path)
		paths = append(paths, path)
	}
	return paths, nil
}

func encode(doc Document, format string) ([]byte, string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "yaml", "yml":
		raw, err := yaml.Marshal(doc)
		if err != nil {
			return nil, "", fmt.Errorf("encode yaml: %w", err)
		}
		return raw, ".yaml", nil
	case "json":
		raw, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("encode json: %w", err)
		}
		return append(raw, '\n'), ".json", nil
	default:
		return nil, "", fmt.Errorf("unsupported report format %q", format)
	}
}
