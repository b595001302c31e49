package cmd

import (
	"fmt"

	"github.com/Iron-Ham/horizon/internal/packet"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <packet>...",
	Short: "Check work packet files without running them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		p, err := packet.Load(path)
		if err != nil {
			failed++
			fmt.Fprintf(out, "✗ %s\n  %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "✓ %s: %q (%d tasks, %d acceptance criteria)\n",
			path, p.Title, len(p.Tasks), len(p.AcceptanceCriteria))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d packets are invalid", failed, len(args))
	}
	return nil
}
