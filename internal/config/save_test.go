package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func loadWithViper(t *testing.T, path string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return v
}

func TestSaveOnboardingTemplateID_CreatesNewFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, SaveOnboardingTemplateID(configPath, "onboarding-v2"))

	v := loadWithViper(t, configPath)
	require.Equal(t, "onboarding-v2", v.GetString("onboarding.template_id"))
}

func TestSaveOnboardingTemplateID_PreservesOtherConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	initial := `# Playbook Configuration
server:
  addr: 0.0.0.0:9000 # public
verification:
  parallelism: 2
onboarding:
  template_id: onboarding-v1
`
	require.NoError(t, os.WriteFile(configPath, []byte(initial), 0o600))

	require.NoError(t, SaveOnboardingTemplateID(configPath, "onboarding-v2"))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "# Playbook Configuration")
	require.Contains(t, string(data), "# public")

	v := loadWithViper(t, configPath)
	require.Equal(t, "onboarding-v2", v.GetString("onboarding.template_id"))
	require.Equal(t, "0.0.0.0:9000", v.GetString("server.addr"))
	require.Equal(t, 2, v.GetInt("verification.parallelism"))
}

func TestSaveOnboardingTemplateID_DefaultTemplate(t *testing.T) {
	// The default template leaves onboarding with only commented children.
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(configPath))

	require.NoError(t, SaveOnboardingTemplateID(configPath, "onboarding-v1"))

	v := loadWithViper(t, configPath)
	require.Equal(t, "onboarding-v1", v.GetString("onboarding.template_id"))
	require.Equal(t, "embedded", v.GetString("templates.source"))
}

func TestSetValue_EmptyPath(t *testing.T) {
	err := SetValue(filepath.Join(t.TempDir(), "config.yaml"), nil, "x")
	require.Error(t, err)
}

func TestSetValue_RootNotMapping(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("- a\n- b\n"), 0o600))

	err := SetValue(configPath, []string{"onboarding", "template_id"}, "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a mapping")
}
