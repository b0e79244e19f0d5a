package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sotto/internal/domain"
)

func contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.Wire.Contacts.ListContacts()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No contacts.")
				return nil
			}
			for _, rec := range list {
				name := rec.DisplayName
				if name == "" {
					name = "(unnamed)"
				}
				added := time.Unix(rec.EstablishedAt, 0).Format("2006-01-02")
				fmt.Printf("%s  %-20s %-20s added %s\n", rec.PublicKey, name, rec.TrustOrigin, added)
			}
			return nil
		},
	}
	cmd.AddCommand(contactsRenameCmd())
	return cmd
}

func contactsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <peer-key> <display-name>",
		Short: "Rename a contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := domain.ParsePeerKey(args[0])
			if err != nil {
				return err
			}
			if err := a.Wire.Contacts.RenameContact(peer, args[1]); err != nil {
				return err
			}
			fmt.Printf("Renamed %s to %q.\n", peer, args[1])
			return nil
		},
	}
}
