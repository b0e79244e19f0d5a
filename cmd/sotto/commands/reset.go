package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe identity, prekeys, sessions and contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				fmt.Print("This wipes the identity, prekeys, sessions and contacts. Type 'yes' to continue: ")
				r := bufio.NewReader(os.Stdin)
				line, _ := r.ReadString('\n')
				if strings.TrimSpace(line) != "yes" {
					fmt.Println("Aborted.")
					return nil
				}
			}
			if err := a.Reset(); err != nil {
				return err
			}
			fmt.Println("All local state removed.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}
