package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/rapidsbuild/pkg/backend"
)

// buildTarget pairs the requirement and build hooks of one artifact kind.
type buildTarget struct {
	requires backend.Hook
	build    backend.Hook
}

// buildTargets returns the artifact kinds in hook order, keyed by
// [backend.Hook.Target].
func buildTargets() ([]string, map[string]buildTarget) {
	var names []string
	targets := map[string]buildTarget{}
	for _, h := range backend.Hooks {
		t := targets[h.Target()]
		switch {
		case h.IsRequires():
			t.requires = h
		case h.IsBuild():
			t.build = h
			names = append(names, h.Target())
		default:
			continue
		}
		targets[h.Target()] = t
	}
	return names, targets
}

// buildCommand creates the command that builds an artifact.
func (c *CLI) buildCommand() *cobra.Command {
	var out string
	names, targets := buildTargets()

	cmd := &cobra.Command{
		Use:   "build {wheel|sdist|editable}",
		Short: "Build a wheel, sdist or editable wheel through the wrapped backend",
		Long: `Run the requirement hook and then the build hook for one target.

The reported requirements are not installed; the build runs in the current
Python environment, which must already provide them.`,
		ValidArgs: names,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := targets[args[0]]
			ctx := cmd.Context()

			outDir, err := filepath.Abs(out)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			req, err := c.request(outDir, "")
			if err != nil {
				return err
			}

			d := c.newDispatcher()
			prog := newProgress(c.Logger)

			// Editable requirements are optional; skip them when not exposed.
			exposed, err := d.Exposed(ctx)
			if err != nil {
				return err
			}
			if exposed.Has(target.requires) {
				resp, err := d.Call(ctx, target.requires, req)
				if err != nil {
					return err
				}
				printInfo(c.out, "Build requirements")
				for _, r := range resp.Requires {
					printDetail(c.out, "%s", r)
				}
				if len(resp.Requires) > 0 {
					printDetail(c.out, "%s", StyleWarning.Render("not installed by rapidsbuild"))
				}
			}

			resp, err := d.Call(ctx, target.build, req)
			if err != nil {
				return err
			}
			prog.done("Built " + resp.Path)
			printSuccess(c.out, "Built %s", args[0])
			printFile(c.out, filepath.Join(outDir, resp.Path))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "dist", "output directory")
	return cmd
}
