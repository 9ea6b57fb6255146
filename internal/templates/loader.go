package templates

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/checklist-engine/internal/models"
)

// Importer stores a template, replacing any existing template with the
// same name. checklist.StoreManager satisfies it.
type Importer interface {
	ImportTemplate(ctx context.Context, req models.TemplateRequest) (*models.Template, bool, error)
}

// File is a template definition parsed from YAML
type File struct {
	Path     string
	Template models.TemplateRequest
}

// ImportResult summarizes an import run
type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Failed  []string `json:"failed,omitempty"`
}

// templateFile represents the YAML structure of a template file
type templateFile struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	EstimatedDays int               `yaml:"estimated_days"`
	Categories    models.Categories `yaml:"categories"`
}

// LoadFromDir parses all YAML templates in dir and its direct
// subdirectories. Files that fail to parse are logged and skipped.
func LoadFromDir(dir string) ([]File, error) {
	slog.Info("loading templates from directory", "dir", dir)

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	patterns := []string{"*.yaml", "*.yml"}
	var paths []string

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		paths = append(paths, matches...)

		subMatches, err := filepath.Glob(filepath.Join(dir, "*", pattern))
		if err != nil {
			continue
		}
		paths = append(paths, subMatches...)
	}
	sort.Strings(paths)

	files := make([]File, 0, len(paths))
	for _, path := range paths {
		f, err := LoadFromFile(path)
		if err != nil {
			slog.Warn("failed to load template", "file", path, "error", err)
			continue
		}
		files = append(files, *f)
	}

	slog.Info("templates loaded", "count", len(files), "total_files", len(paths))
	return files, nil
}

// LoadFromFile parses a single template from a YAML file
func LoadFromFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	tmpl, err := Parse(data)
	if err != nil {
		return nil, err
	}

	return &File{Path: path, Template: tmpl}, nil
}

// Parse decodes a YAML template. Only the structure is checked here; the
// manager applies the full validation on import.
func Parse(data []byte) (models.TemplateRequest, error) {
	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return models.TemplateRequest{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if strings.TrimSpace(tf.Name) == "" {
		return models.TemplateRequest{}, fmt.Errorf("template name is required")
	}
	if len(tf.Categories) == 0 {
		return models.TemplateRequest{}, fmt.Errorf("template %q has no categories", tf.Name)
	}

	return models.TemplateRequest{
		Name:          tf.Name,
		Description:   tf.Description,
		EstimatedDays: tf.EstimatedDays,
		Categories:    tf.Categories,
	}, nil
}

// ImportDir loads dir and imports every template through imp. A template
// rejected by imp is recorded in Failed and does not stop the run.
func ImportDir(ctx context.Context, dir string, imp Importer) (ImportResult, error) {
	var res ImportResult

	files, err := LoadFromDir(dir)
	if err != nil {
		return res, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		tmpl, created, err := imp.ImportTemplate(ctx, f.Template)
		if err != nil {
			slog.Warn("failed to import template", "file", f.Path, "name", f.Template.Name, "error", err)
			res.Failed = append(res.Failed, f.Path)
			continue
		}

		if created {
			res.Created++
		} else {
			res.Updated++
		}
		slog.Info("template imported", "file", f.Path, "id", tmpl.ID, "name", tmpl.Name, "created", created)
	}

	return res, nil
}
