package templates

import (
	"fmt"
	"io/fs"
	"os"
	stdpath "path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/playbook/internal/log"
	"github.com/zjrosen/playbook/internal/playbook"
)

// CatalogDir is the directory inside CatalogFS holding template files.
const CatalogDir = "catalog"

// TemplateDef is the file and record representation of a template.
type TemplateDef struct {
	ID          string    `yaml:"id" json:"template_id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	Category    string    `yaml:"category" json:"category"`
	Version     string    `yaml:"version" json:"version"`
	Steps       []StepDef `yaml:"steps" json:"steps"`
}

// StepDef defines a single step. EstimatedDuration is a Go duration string
// such as "15m" or "1h30m".
type StepDef struct {
	ID                string         `yaml:"id" json:"id"`
	Title             string         `yaml:"title" json:"title"`
	Description       string         `yaml:"description" json:"description"`
	StepType          string         `yaml:"step_type" json:"step_type"`
	Required          bool           `yaml:"required" json:"required"`
	Order             int            `yaml:"order" json:"order"`
	EstimatedDuration string         `yaml:"estimated_duration" json:"estimated_duration,omitempty"`
	Metadata          map[string]any `yaml:"metadata" json:"metadata,omitempty"`
}

// ToTemplate converts the definition into a validated, order-sorted template.
func (d TemplateDef) ToTemplate() (*playbook.Template, error) {
	t := &playbook.Template{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Category:    playbook.Category(d.Category),
		Version:     d.Version,
		Steps:       make([]playbook.Step, 0, len(d.Steps)),
	}
	for _, s := range d.Steps {
		var estimate time.Duration
		if s.EstimatedDuration != "" {
			var err error
			estimate, err = time.ParseDuration(s.EstimatedDuration)
			if err != nil {
				return nil, fmt.Errorf("template %s: step %s: invalid estimated_duration %q: %w", d.ID, s.ID, s.EstimatedDuration, err)
			}
		}
		t.Steps = append(t.Steps, playbook.Step{
			ID:                s.ID,
			Title:             s.Title,
			Description:       s.Description,
			StepType:          playbook.StepType(s.StepType),
			IsRequired:        s.Required,
			Order:             s.Order,
			EstimatedDuration: estimate,
			Metadata:          s.Metadata,
		})
	}
	if err := t.Normalize(); err != nil {
		return nil, err
	}
	return t, nil
}

// DefFromTemplate converts a template back into its definition.
func DefFromTemplate(t *playbook.Template) TemplateDef {
	d := TemplateDef{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Category:    string(t.Category),
		Version:     t.Version,
		Steps:       make([]StepDef, 0, len(t.Steps)),
	}
	for _, s := range t.Steps {
		sd := StepDef{
			ID:          s.ID,
			Title:       s.Title,
			Description: s.Description,
			StepType:    string(s.StepType),
			Required:    s.IsRequired,
			Order:       s.Order,
			Metadata:    s.Metadata,
		}
		if s.EstimatedDuration > 0 {
			sd.EstimatedDuration = s.EstimatedDuration.String()
		}
		d.Steps = append(d.Steps, sd)
	}
	return d
}

// ParseTemplate parses a single YAML template document.
func ParseTemplate(content []byte) (*playbook.Template, error) {
	var def TemplateDef
	if err := yaml.Unmarshal(content, &def); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return def.ToTemplate()
}

// LoadFromFS loads every *.yaml and *.yml file under dir. Any invalid file
// fails the whole load, as does a template id defined twice.
func LoadFromFS(fsys fs.FS, dir string) ([]*playbook.Template, error) {
	var templates []*playbook.Template
	seen := make(map[string]string)

	err := fs.WalkDir(fsys, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isTemplateFile(path) {
			return nil
		}

		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		t, err := ParseTemplate(content)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if prev, ok := seen[t.ID]; ok {
			return fmt.Errorf("template %s defined in both %s and %s", t.ID, prev, path)
		}
		seen[t.ID] = path
		templates = append(templates, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan templates: %w", err)
	}
	return templates, nil
}

// UserTemplatesDir returns ~/.playbook/templates, or "" if the home directory
// cannot be determined.
func UserTemplatesDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".playbook", "templates")
}

// LoadUserDir loads templates from a user directory. A missing directory
// yields no templates. Invalid files are logged and skipped so one bad file
// does not hide the rest.
func LoadUserDir(dir string) ([]*playbook.Template, error) {
	if dir == "" {
		return nil, nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat user template dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("user template path %s is not a directory", dir)
	}

	fsys := os.DirFS(dir)
	var templates []*playbook.Template
	seen := make(map[string]bool)
	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isTemplateFile(path) {
			return nil
		}
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			log.Warn(log.CatTemplates, "skipping unreadable user template", "path", path, "error", err.Error())
			return nil
		}
		t, err := ParseTemplate(content)
		if err != nil {
			log.Warn(log.CatTemplates, "skipping invalid user template", "path", path, "error", err.Error())
			return nil
		}
		if seen[t.ID] {
			log.Warn(log.CatTemplates, "skipping duplicate user template", "path", path, "id", t.ID)
			return nil
		}
		seen[t.ID] = true
		templates = append(templates, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan user templates: %w", err)
	}
	return templates, nil
}

func isTemplateFile(path string) bool {
	ext := strings.ToLower(stdpath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
