package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

var sensitiveKeys = []string{"password", "secret", "dsn"}

// newConfigCommand prints the effective settings after flags, environment
// and config file are merged.
func (a *App) newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.readConfig(cmd); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), a.settingsTable())
			return nil
		},
	}
}

func (a *App) settingsTable() string {
	keys := a.v.AllKeys()
	sort.Strings(keys)

	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("KEY", "VALUE")
	for _, k := range keys {
		table.AddRow(k, maskValue(k, a.v.Get(k)))
	}
	return table.String() + "\n"
}

func maskValue(key string, value any) any {
	s := fmt.Sprint(value)
	if s == "" {
		return s
	}
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(key, sensitive) {
			return "******"
		}
	}
	return value
}
