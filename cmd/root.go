package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/playbook/internal/config"
	"github.com/zjrosen/playbook/internal/log"
)

// localConfigPath is where a default config is written when none exists.
const localConfigPath = ".playbook/config.yaml"

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	userFlag  string
	orgFlag   string
	cfg       config.Config

	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "playbook",
	Short: "Track user journeys through multi-step playbooks",
	Long: `Playbook tracks each user's progress through ordered multi-step templates,
auto-completing steps whose business data is already in place and recording
manual submissions as an audit trail.

Journeys are scoped to a user and an organization, passed with --user and
--org or the PLAYBOOK_USER and PLAYBOOK_ORG environment variables.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCleanup != nil {
			logCleanup()
			logCleanup = nil
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .playbook/config.yaml or ~/.config/playbook/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write debug logs (PLAYBOOK_LOG, default debug.log)")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "",
		"user id (default: $PLAYBOOK_USER)")
	rootCmd.PersistentFlags().StringVar(&orgFlag, "org", "",
		"organization id (default: $PLAYBOOK_ORG)")
}

func initConfig() {
	setDefaults(viper.GetViper(), config.Defaults())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .playbook/config.yaml (current directory)
		// 2. ~/.config/playbook/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "playbook"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if writeErr := config.WriteDefaultConfig(localConfigPath); writeErr == nil {
				viper.SetConfigFile(localConfigPath)
				_ = viper.ReadInConfig()
			}
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// setDefaults registers every config default with v so that keys missing
// from the file still unmarshal to their default.
func setDefaults(v *viper.Viper, defaults config.Config) {
	v.SetDefault("database.path", defaults.Database.Path)
	v.SetDefault("templates.source", defaults.Templates.Source)
	v.SetDefault("templates.user_dir", defaults.Templates.UserDir)
	v.SetDefault("templates.watch", defaults.Templates.Watch)
	v.SetDefault("templates.cache_ttl", defaults.Templates.CacheTTL)
	v.SetDefault("verification.parallelism", defaults.Verification.Parallelism)
	v.SetDefault("verification.strict", defaults.Verification.Strict)
	v.SetDefault("verification.manual_only", defaults.Verification.ManualOnly)
	v.SetDefault("onboarding.template_id", defaults.Onboarding.TemplateID)
	v.SetDefault("server.addr", defaults.Server.Addr)
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
}

// setupLogging enables the file logger when --debug or PLAYBOOK_DEBUG is set.
func setupLogging(*cobra.Command, []string) error {
	if !debugFlag && os.Getenv("PLAYBOOK_DEBUG") == "" {
		return nil
	}
	logPath := os.Getenv("PLAYBOOK_LOG")
	if logPath == "" {
		logPath = "debug.log"
	}
	cleanup, err := log.Init(logPath)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logCleanup = cleanup
	if level := os.Getenv("PLAYBOOK_LOG_LEVEL"); level != "" {
		log.SetMinLevel(log.ParseLevel(level))
	}
	log.Info(log.CatConfig, "playbook starting", "version", version, "config", viper.ConfigFileUsed())
	return nil
}

// configFilePath returns the file config changes are saved to.
func configFilePath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return localConfigPath
}

// identity resolves the caller's user and organization.
func identity() (userID, organizationID string, err error) {
	userID = firstNonEmpty(userFlag, os.Getenv("PLAYBOOK_USER"))
	organizationID = firstNonEmpty(orgFlag, os.Getenv("PLAYBOOK_ORG"))
	if userID == "" || organizationID == "" {
		return "", "", errors.New("user and organization are required (--user/--org or PLAYBOOK_USER/PLAYBOOK_ORG)")
	}
	return userID, organizationID, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
