package app

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/autopeer-io/plantd/pkg/log"
)

const configFlagName = "config"

func (a *App) addConfigFlag(fs *pflag.FlagSet) {
	fs.StringVarP(&a.cfgFile, configFlagName, "c", a.cfgFile,
		fmt.Sprintf("Read configuration from the specified file. Environment variables prefixed with %s_ override it.", envPrefix(a.name)))
}

// envPrefix maps "plantd" to "PLANTD" and "plantd-server" to "PLANTD_SERVER".
func envPrefix(basename string) string {
	return strings.ToUpper(strings.ReplaceAll(basename, "-", "_"))
}

func (a *App) readConfig(cmd *cobra.Command) error {
	v := a.v
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	v.SetEnvPrefix(envPrefix(a.name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if a.cfgFile == "" {
		return nil
	}
	v.SetConfigFile(a.cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file %s: %w", a.cfgFile, err)
	}
	return nil
}

// watchConfig re-decodes the options whenever the config file changes. The
// options are only handed to the callback when they still validate.
func (a *App) watchConfig() {
	a.v.OnConfigChange(func(e fsnotify.Event) {
		logger := log.WithName("config")
		if err := a.v.Unmarshal(a.options); err != nil {
			logger.Error(err, "Failed to decode changed configuration", "file", filepath.Base(e.Name))
			return
		}
		if err := a.options.Validate(); err != nil {
			logger.Error(err, "Ignoring invalid configuration change", "file", filepath.Base(e.Name))
			return
		}
		logger.Info("Configuration reloaded", "file", filepath.Base(e.Name))
		a.onChange(e)
	})
	a.v.WatchConfig()
}
