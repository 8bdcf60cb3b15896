package templates

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/playbook/internal/playbook"
)

const twoStepYAML = `
id: two-step
name: Two Step
category: tactical
version: "2"
steps:
  - id: second
    title: Second
    step_type: form
    order: 20
    estimated_duration: 1h30m
  - id: first
    title: First
    step_type: data_entry
    required: true
    order: 10
    metadata:
      table: expenses
`

func TestParseTemplate(t *testing.T) {
	tpl, err := ParseTemplate([]byte(twoStepYAML))
	require.NoError(t, err)

	require.Equal(t, "two-step", tpl.ID)
	require.Equal(t, playbook.CategoryTactical, tpl.Category)
	require.Equal(t, []string{"first", "second"}, tpl.StepIDs(), "steps are sorted by order")
	require.True(t, tpl.Steps[0].IsRequired)
	require.Equal(t, "expenses", tpl.Steps[0].Metadata["table"])
	require.Equal(t, 90*time.Minute, tpl.Steps[1].EstimatedDuration)
	require.Zero(t, tpl.Steps[0].EstimatedDuration)
}

func TestParseTemplate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			yaml:    "id: [",
			wantErr: "parse template",
		},
		{
			name: "bad duration",
			yaml: `
id: t
category: business
steps:
  - {id: a, step_type: form, order: 1, estimated_duration: soon}`,
			wantErr: "invalid estimated_duration",
		},
		{
			name: "unknown category",
			yaml: `
id: t
category: fun
steps:
  - {id: a, step_type: form, order: 1}`,
			wantErr: "invalid category",
		},
		{
			name: "no steps",
			yaml: `
id: t
category: business`,
			wantErr: "at least one step",
		},
		{
			name: "shared order",
			yaml: `
id: t
category: business
steps:
  - {id: a, step_type: form, order: 1}
  - {id: b, step_type: form, order: 1}`,
			wantErr: "share order",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate([]byte(tt.yaml))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDefFromTemplate_RoundTrip(t *testing.T) {
	tpl, err := ParseTemplate([]byte(twoStepYAML))
	require.NoError(t, err)

	back, err := DefFromTemplate(tpl).ToTemplate()
	require.NoError(t, err)
	require.Equal(t, tpl, back)
}

func TestLoadFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"catalog/two-step.yaml": {Data: []byte(twoStepYAML)},
		"catalog/README.md":     {Data: []byte("not a template")},
		"catalog/nested/b.yml": {Data: []byte(`
id: nested
category: strategic
steps:
  - {id: a, step_type: form, order: 1}`)},
	}

	templates, err := LoadFromFS(fsys, "catalog")
	require.NoError(t, err)
	require.Len(t, templates, 2)
}

func TestLoadFromFS_DuplicateID(t *testing.T) {
	fsys := fstest.MapFS{
		"catalog/a.yaml": {Data: []byte(twoStepYAML)},
		"catalog/b.yaml": {Data: []byte(twoStepYAML)},
	}

	_, err := LoadFromFS(fsys, "catalog")
	require.ErrorContains(t, err, "defined in both")
}

func TestLoadFromFS_InvalidFileFails(t *testing.T) {
	fsys := fstest.MapFS{
		"catalog/a.yaml": {Data: []byte("id: broken\ncategory: business\n")},
	}

	_, err := LoadFromFS(fsys, "catalog")
	require.ErrorContains(t, err, "catalog/a.yaml")
}

func TestLoadUserDir_MissingDir(t *testing.T) {
	templates, err := LoadUserDir(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	require.Nil(t, templates)

	templates, err = LoadUserDir("")
	require.NoError(t, err)
	require.Nil(t, templates)
}

func TestLoadUserDir_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.yaml")
	require.NoError(t, os.WriteFile(path, []byte(twoStepYAML), 0o600))

	_, err := LoadUserDir(path)
	require.ErrorContains(t, err, "not a directory")
}

func TestLoadUserDir_SkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(twoStepYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: ["), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dup.yml"), []byte(twoStepYAML), 0o600))

	templates, err := LoadUserDir(dir)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	require.Equal(t, "two-step", templates[0].ID)
}
