package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"sotto/internal/domain"
	"sotto/internal/session"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect and chat interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := &repl{messenger: m, names: make(map[domain.PeerKey]string)}
			if contacts, err := a.Wire.Contacts.ListContacts(); err == nil {
				for _, rec := range contacts {
					if rec.DisplayName != "" {
						r.names[rec.PublicKey] = rec.DisplayName
					}
				}
			}

			m.OnMessageDecrypted(func(peer domain.PeerKey, pt []byte) {
				fmt.Printf("%s: %s\n", r.label(peer), pt)
			})
			m.OnFriendAdded(func(peer domain.PeerKey, origin domain.TrustOrigin) {
				fmt.Printf("* new contact %s (%s)\n", r.label(peer), origin)
			})
			m.OnPresence(func(peer domain.PeerKey, p domain.PresencePayload) {
				if p.DisplayName != "" {
					r.setName(peer, p.DisplayName)
				}
				fmt.Printf("* %s is %s\n", r.label(peer), p.Status)
			})
			m.OnTyping(func(peer domain.PeerKey, active bool) {
				if active {
					fmt.Printf("* %s is typing\n", r.label(peer))
				}
			})
			m.OnTransportStateChanged(func(peer domain.PeerKey, phase domain.LinkPhase) {
				fmt.Printf("* link to %s: %s\n", r.label(peer), phase)
			})

			if err := m.Start(ctx); err != nil {
				return err
			}
			defer m.Close()

			fmt.Printf("Connected as %s\n", id.PeerKey())
			fmt.Println("Commands: /add <peer-key> [name], /remove <peer-key>, /contacts, /to <peer-key>, /quit")
			fmt.Println("Anything else is sent to the current peer.")

			lines := make(chan string)
			go func() {
				defer close(lines)
				sc := bufio.NewScanner(os.Stdin)
				for sc.Scan() {
					lines <- sc.Text()
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					quit, err := r.handle(ctx, line)
					if err != nil {
						fmt.Printf("! %v\n", err)
					}
					if quit {
						return nil
					}
				}
			}
		},
	}
}

// repl holds the interactive loop's state: the selected peer and the
// display names learned from contacts and presence.
type repl struct {
	messenger interface {
		SendPlaintext(ctx context.Context, peer domain.PeerKey, text []byte) error
		AddPeer(ctx context.Context, peer domain.PeerKey, displayName string, origin domain.TrustOrigin) error
		RemovePeer(peer domain.PeerKey) error
	}

	mu      sync.Mutex
	current domain.PeerKey
	names   map[domain.PeerKey]string
}

func (r *repl) handle(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, r.send(ctx, line)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return true, nil
	case "/to":
		if len(fields) != 2 {
			return false, errors.New("usage: /to <peer-key>")
		}
		peer, err := domain.ParsePeerKey(fields[1])
		if err != nil {
			return false, err
		}
		r.mu.Lock()
		r.current = peer
		r.mu.Unlock()
		fmt.Printf("* talking to %s\n", r.label(peer))
		return false, nil
	case "/add":
		if len(fields) < 2 {
			return false, errors.New("usage: /add <peer-key> [name]")
		}
		peer, err := domain.ParsePeerKey(fields[1])
		if err != nil {
			return false, err
		}
		name := ""
		if len(fields) > 2 {
			name = strings.Join(fields[2:], " ")
		}
		if err := r.messenger.AddPeer(ctx, peer, name, domain.TrustSharedLink); err != nil {
			return false, err
		}
		if name != "" {
			r.setName(peer, name)
		}
		r.mu.Lock()
		r.current = peer
		r.mu.Unlock()
		fmt.Printf("* handshake sent to %s\n", r.label(peer))
		return false, nil
	case "/remove":
		if len(fields) != 2 {
			return false, errors.New("usage: /remove <peer-key>")
		}
		peer, err := domain.ParsePeerKey(fields[1])
		if err != nil {
			return false, err
		}
		if err := r.messenger.RemovePeer(peer); err != nil {
			return false, err
		}
		r.mu.Lock()
		if r.current == peer {
			r.current = ""
		}
		delete(r.names, peer)
		r.mu.Unlock()
		fmt.Printf("* removed %s\n", peer)
		return false, nil
	case "/contacts":
		list, err := a.Wire.Contacts.ListContacts()
		if err != nil {
			return false, err
		}
		if len(list) == 0 {
			fmt.Println("* no contacts")
		}
		for _, rec := range list {
			fmt.Printf("* %s  %s\n", rec.PublicKey, rec.DisplayName)
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

func (r *repl) send(ctx context.Context, text string) error {
	r.mu.Lock()
	peer := r.current
	r.mu.Unlock()
	if peer == "" {
		return errors.New("no peer selected; use /to <peer-key>")
	}
	err := r.messenger.SendPlaintext(ctx, peer, []byte(text))
	switch {
	case errors.Is(err, session.ErrRoleOrdering):
		return fmt.Errorf("%s has to message you first", r.label(peer))
	case errors.Is(err, session.ErrNoSession):
		return fmt.Errorf("no session with %s; use /add first", r.label(peer))
	}
	return err
}

func (r *repl) label(peer domain.PeerKey) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name, ok := r.names[peer]; ok && name != "" {
		return name
	}
	s := string(peer)
	if len(s) > 12 {
		return s[:12] + "…"
	}
	return s
}

func (r *repl) setName(peer domain.PeerKey, name string) {
	r.mu.Lock()
	r.names[peer] = name
	r.mu.Unlock()
}
