package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sotto/internal/contact"
	"sotto/internal/domain"
)

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <peer-key>",
		Short: "Remove a contact and its session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := domain.ParsePeerKey(args[0])
			if err != nil {
				return err
			}
			if err := a.Wire.SessionStore.DeleteSessionRecord(peer); err != nil {
				return err
			}
			if err := a.Wire.Contacts.RemoveContact(peer); err != nil && !errors.Is(err, contact.ErrNotFound) {
				return err
			}
			fmt.Printf("Removed %s.\n", peer)
			return nil
		},
	}
}
