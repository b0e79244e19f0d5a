package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sotto/internal/logutil"
	"sotto/internal/rendezvous"
)

func main() {
	pflag.String("listen", ":8441", "listen address")
	pflag.String("log-level", "", "logging level: debug|info|warn|error")
	pflag.String("log-format", "text", "logging format: text|json")
	pflag.Parse()

	_ = viper.BindPFlag("listen", pflag.Lookup("listen"))
	_ = viper.BindPFlag("logging.level", pflag.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", pflag.Lookup("log-format"))
	viper.SetEnvPrefix("SOTTO_RENDEZVOUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	log, err := logutil.LoggerFromViper()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	server := rendezvous.NewServer(log)
	// No WriteTimeout: the hub owns deadlines on upgraded connections.
	srv := &http.Server{
		Addr:        viper.GetString("listen"),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("rendezvous listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}
