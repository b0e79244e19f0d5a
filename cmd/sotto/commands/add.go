package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"sotto/internal/domain"
)

func addCmd() *cobra.Command {
	var (
		name     string
		verified bool
	)
	cmd := &cobra.Command{
		Use:   "add <peer-key>",
		Short: "Fetch a peer's bundle and initiate a handshake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := domain.ParsePeerKey(args[0])
			if err != nil {
				return err
			}
			pass, err := promptPassphrase(false)
			if err != nil {
				return err
			}
			id, err := a.Wire.IDs.LoadIdentity(pass)
			if err != nil {
				return err
			}
			m, err := a.Messenger(id)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := m.Start(ctx); err != nil {
				return err
			}
			defer m.Close()

			origin := domain.TrustSharedLink
			if verified {
				origin = domain.TrustDirectVerification
			}
			if err := m.AddPeer(ctx, peer, name, origin); err != nil {
				return err
			}
			fmt.Printf("Handshake sent to %s.\n", peer)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name for the contact")
	cmd.Flags().BoolVar(&verified, "verified", false, "mark the key as verified out of band")
	return cmd
}
