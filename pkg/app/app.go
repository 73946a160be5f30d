// Package app builds cobra commands that load their options from flags,
// environment variables and an optional config file.
package app

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/term"
)

// RunFunc is the main body of a command, called after the options are
// loaded and validated.
type RunFunc func() error

// ConfigChangeFunc is called after the config file changed and the options
// were reloaded from it.
type ConfigChangeFunc func(e fsnotify.Event)

type Option func(*App)

// App is a command line application.
type App struct {
	name        string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	onChange    ConfigChangeFunc
	noConfig    bool
	args        cobra.PositionalArgs

	// cfgFile is bound to --config.
	cfgFile string

	v   *viper.Viper
	cmd *cobra.Command
}

func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithNoConfig disables the --config flag and the config subcommand.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// WithConfigChangeFunc watches the config file and calls fn after each reload.
func WithConfigChangeFunc(fn ConfigChangeFunc) Option {
	return func(a *App) { a.onChange = fn }
}

// WithDefaultValidArgs rejects positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// NewApp creates an application with the given name and options.
func NewApp(name string, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		v:         viper.New(),
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

// Command returns the underlying cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the command and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	var fss cliflag.NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
	}
	if !a.noConfig {
		a.addConfigFlag(fss.FlagSet("global"))
	}
	// Persistent so the config subcommand sees the same flags.
	for _, name := range fss.Order {
		cmd.PersistentFlags().AddFlagSet(fss.FlagSets[name])
	}

	if a.runFunc != nil {
		cmd.RunE = a.runCommand
	}
	if !a.noConfig && a.options != nil {
		cmd.AddCommand(a.newConfigCommand())
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, fss, cols)

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	if err := a.loadOptions(cmd); err != nil {
		return err
	}
	return a.runFunc()
}

// loadOptions merges flags, environment and config file into the options,
// then completes and validates them.
func (a *App) loadOptions(cmd *cobra.Command) error {
	if a.options == nil {
		return nil
	}
	if !a.noConfig {
		if err := a.readConfig(cmd); err != nil {
			return err
		}
		if err := a.v.Unmarshal(a.options); err != nil {
			return fmt.Errorf("failed to decode configuration: %w", err)
		}
	}
	if err := a.options.Complete(); err != nil {
		return err
	}
	if err := a.options.Validate(); err != nil {
		return err
	}
	if a.onChange != nil && a.v.ConfigFileUsed() != "" {
		a.watchConfig()
	}
	return nil
}
