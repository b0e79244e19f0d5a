package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the identity fingerprint and peer key",
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := promptPassphrase(false)
			if err != nil {
				return err
			}
			id, err := a.Wire.IDs.LoadIdentity(pass)
			if err != nil {
				return err
			}
			fp, err := a.Wire.IDs.FingerprintIdentity(pass)
			if err != nil {
				return err
			}
			fmt.Printf("Fingerprint: %s\nPeer key:    %s\n", fp, id.PeerKey())
			return nil
		},
	}
}
