package cli

import (
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/matzehuels/rapidsbuild/pkg/probe"
	"github.com/matzehuels/rapidsbuild/pkg/pyproject"
	"github.com/matzehuels/rapidsbuild/pkg/txn"
)

// previewCommand creates the command that shows the manifest rewrite.
func (c *CLI) previewCommand() *cobra.Command {
	var context int

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show how pyproject.toml is rewritten during a build",
		Long: `Print the rewrite applied to pyproject.toml during a hook as a unified
diff. Nothing is written to disk.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			m := txn.NewManifest(cfg, probe.New(c.dir, c.runner, c.Logger), c.Logger)
			edit, err := m.Prepare(cmd.Context())
			if err != nil {
				return err
			}

			diff, err := unifiedDiff(edit, context)
			if err != nil {
				return err
			}
			if diff == "" {
				printInfo(c.out, "%s is unchanged", pyproject.Filename)
				return nil
			}
			printDiff(c.out, diff)
			added, removed := changedLines(diff)
			printDetail(c.out, "%d additions, %d deletions", added, removed)
			if edit.Name != edit.OriginalName {
				printDetail(c.out, "%s -> %s", edit.OriginalName, edit.Name)
			}
			for _, key := range edit.Generated {
				printDetail(c.out, "generated from dependency file key %s", key)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&context, "context", "U", 3, "lines of context around each change")
	return cmd
}

// unifiedDiff renders the rewrite of edit.
func unifiedDiff(edit *txn.Edit, context int) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(edit.Original)),
		B:        difflib.SplitLines(string(edit.Rewritten)),
		FromFile: "a/" + pyproject.Filename,
		ToFile:   "b/" + pyproject.Filename,
		Context:  context,
	})
}

// changedLines counts the added and removed lines of a unified diff.
func changedLines(diff string) (added, removed int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}
