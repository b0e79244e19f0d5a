package commands

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"sotto/internal/app"
	"sotto/internal/logutil"
	"sotto/internal/util/memzero"
)

const envPrefix = "SOTTO"

var (
	a          *app.App
	passphrase string
)

func Execute() error {
	root := &cobra.Command{
		Use:          "sotto",
		Short:        "End-to-end encrypted messaging over a rendezvous service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			log, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			cfg, err := app.FromViper()
			if err != nil {
				return err
			}
			w, err := app.NewWire(cfg)
			if err != nil {
				return err
			}
			a = app.New(cfg, log, w)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("home", "", "state directory (default ~/.sotto)")
	pf.String("rendezvous", "", "rendezvous base URL (e.g. http://127.0.0.1:8441)")
	pf.String("display-name", "", "name announced in presence envelopes")
	pf.Bool("verbose", false, "debug logging")
	pf.StringVarP(&passphrase, "passphrase", "p", "", "identity passphrase (prompted when omitted)")

	_ = viper.BindPFlag("home", pf.Lookup("home"))
	_ = viper.BindPFlag("rendezvous_url", pf.Lookup("rendezvous"))
	_ = viper.BindPFlag("display_name", pf.Lookup("display-name"))
	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))

	viper.SetDefault("transport.stun_servers", []string{"stun:stun.l.google.com:19302"})

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		publishCmd(),
		contactsCmd(),
		addCmd(),
		removeCmd(),
		runCmd(),
		resetCmd(),
	)
	return root.Execute()
}

// initConfig merges the optional config file and SOTTO_* environment
// variables into viper. A missing config file is not an error.
func initConfig() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	home := viper.GetString("home")
	if home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		home = filepath.Join(dir, ".sotto")
	}
	viper.SetConfigFile(filepath.Join(home, "config.yaml"))
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// promptPassphrase returns the -p flag value or reads the passphrase from
// the terminal without echo. With confirm set it asks twice.
func promptPassphrase(confirm bool) (string, error) {
	if passphrase != "" {
		return passphrase, nil
	}
	first, err := readSecret("Passphrase: ")
	if err != nil {
		return "", err
	}
	if confirm {
		second, err := readSecret("Confirm passphrase: ")
		if err != nil {
			memzero.Zero(first)
			return "", err
		}
		match := bytes.Equal(first, second)
		memzero.Zero(second)
		if !match {
			memzero.Zero(first)
			return "", errors.New("passphrases do not match")
		}
	}
	out := string(first)
	memzero.Zero(first)
	return out, nil
}

func readSecret(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		r := bufio.NewReader(os.Stdin)
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return nil, err
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return secret, nil
}
