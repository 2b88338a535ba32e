package cli

import (
	"github.com/spf13/cobra"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for rapidsbuild.

To load completions:

Bash:
  $ source <(rapidsbuild completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ rapidsbuild completion bash > /etc/bash_completion.d/rapidsbuild
  # macOS:
  $ rapidsbuild completion bash > $(brew --prefix)/etc/bash_completion.d/rapidsbuild

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ rapidsbuild completion zsh > "${fpath[1]}/_rapidsbuild"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ rapidsbuild completion fish | source

  # To load completions for each session, execute once:
  $ rapidsbuild completion fish > ~/.config/fish/completions/rapidsbuild.fish

PowerShell:
  PS> rapidsbuild completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> rapidsbuild completion powershell > rapidsbuild.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(c.out, true)
			case "zsh":
				return root.GenZshCompletion(c.out)
			case "fish":
				return root.GenFishCompletion(c.out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(c.out)
			}
			return nil
		},
	}

	return cmd
}
