package app

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the typed view of the viper configuration tree.
type Config struct {
	Home          string // state directory, e.g. $HOME/.sotto
	RendezvousURL string // rendezvous base URL, e.g. http://127.0.0.1:8441
	DisplayName   string // announced in presence envelopes

	STUNServers        []string
	NegotiationTimeout time.Duration
	IdleTimeout        time.Duration

	DialAttempts     int
	PresenceInterval time.Duration

	HTTP *http.Client // optional; defaults to http.DefaultClient
}

// FromViper resolves the configuration from viper, applying defaults for
// anything unset. Flags, config file and SOTTO_* environment variables have
// already been merged by the time this runs.
func FromViper() (Config, error) {
	cfg := Config{
		Home:               viper.GetString("home"),
		RendezvousURL:      viper.GetString("rendezvous_url"),
		DisplayName:        viper.GetString("display_name"),
		STUNServers:        viper.GetStringSlice("transport.stun_servers"),
		NegotiationTimeout: viper.GetDuration("transport.negotiation_timeout"),
		IdleTimeout:        viper.GetDuration("transport.idle_timeout"),
		DialAttempts:       viper.GetInt("signaling.dial_attempts"),
		PresenceInterval:   viper.GetDuration("presence.interval"),
	}
	if cfg.Home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return Config{}, err
		}
		cfg.Home = filepath.Join(dir, ".sotto")
	}
	if cfg.RendezvousURL == "" {
		cfg.RendezvousURL = "http://127.0.0.1:8441"
	}
	return cfg, nil
}
