package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate identity keys and store them encrypted",
		RunE: func(cmd *cobra.Command, args []string) error {
			has, err := a.Wire.IDs.HasIdentity()
			if err != nil {
				return err
			}
			if has {
				return fmt.Errorf("identity already exists; run reset first to replace it")
			}
			pass, err := promptPassphrase(true)
			if err != nil {
				return err
			}
			id, fp, err := a.Wire.IDs.GenerateIdentity(pass)
			if err != nil {
				return err
			}
			fmt.Printf("Identity created.\nFingerprint: %s\nPeer key:    %s\n", fp, id.PeerKey())
			return nil
		},
	}
}
