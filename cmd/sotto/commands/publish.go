package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func publishCmd() *cobra.Command {
	var oneTime int
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Generate prekeys and publish the bundle to the rendezvous service",
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := promptPassphrase(false)
			if err != nil {
				return err
			}
			bundle, err := a.Wire.Prekeys.GeneratePrekeys(pass, oneTime)
			if err != nil {
				return err
			}
			if err := a.Wire.Rendezvous.RegisterBundle(cmd.Context(), bundle); err != nil {
				return fmt.Errorf("publish bundle: %w", err)
			}
			fmt.Printf("Published bundle with %d one-time prekeys.\nPeer key: %s\n",
				len(bundle.OneTimePrekeys), bundle.PeerKey())
			return nil
		},
	}
	cmd.Flags().IntVar(&oneTime, "one-time", 10, "number of one-time prekeys to generate")
	return cmd
}
