package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// configCommand creates the command that shows resolved options.
func (c *CLI) configCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show every option with its resolved value and source",
		Long: `Show the value of every rapidsbuild option and where it came from.

Sources, highest precedence first: RAPIDS_* environment variables,
--setting rapidsai.<option>=<value>, the [tool.rapids-build-backend] table,
and the built-in default.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			resolved := cfg.Resolved()

			if asJSON {
				type entry struct {
					Option string `json:"option"`
					Value  any    `json:"value,omitempty"`
					Source string `json:"source"`
					Error  string `json:"error,omitempty"`
				}
				entries := make([]entry, 0, len(resolved))
				for _, r := range resolved {
					e := entry{Option: string(r.Option), Value: r.Value, Source: r.Source}
					if r.Err != nil {
						e.Error = r.Err.Error()
					}
					entries = append(entries, e)
				}
				return writeJSON(c.out, entries)
			}

			fmt.Fprintln(c.out, StyleTitle.Render(cfg.Dir()))
			for _, r := range resolved {
				printKeyValue(c.out, string(r.Option), formatValue(r.Value), r.Source, r.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the options as JSON")
	return cmd
}

func formatValue(v any) string {
	switch v := v.(type) {
	case []string:
		quoted := make([]string, len(v))
		for i, s := range v {
			quoted[i] = fmt.Sprintf("%q", s)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprint(v)
	}
}
