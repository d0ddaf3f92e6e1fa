package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hermod-gw/hermod"
	itls "github.com/hermod-gw/hermod/internal/tls"
	"github.com/hermod-gw/hermod/pkg/transport/loopback"
)

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}

	cfg, err := hermod.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}

	// The loopback transport backs local/dev deployments; a production build
	// swaps in a backend-specific Transport via the embedding API.
	transport := loopback.New("")
	gw, err := hermod.New(transport, cfg)
	if err != nil {
		return err
	}

	if cfg.Server.Metrics {
		if err := hermod.RegisterMetricsDefault(); err != nil {
			fmt.Printf("Warning: failed to register metrics: %v\n", err)
		}
		if cfg.Server.MetricsListen != "" {
			go func() {
				if err := hermod.ServeMetrics(cfg.Server.MetricsListen); err != nil {
					fmt.Printf("Metrics server error: %v\n", err)
				}
			}()
		}
	}

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           gw.Router().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	protocol := "HTTP"
	if cfg.Server.TLS.Enabled {
		protocol = "HTTPS"
		tlsCfg, err := itls.ServerTLSConfig(cfg.Server.TLS)
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		server.TLSConfig = tlsCfg
		go func() {
			if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				fmt.Printf("Server error: %v\n", err)
			}
		}()
	} else {
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Printf("Server error: %v\n", err)
			}
		}()
	}

	fmt.Printf("Starting hermod %s server on %s%s\n", protocol, cfg.Server.Listen, cfg.Server.BasePath)

	if err := gw.Connect(); err != nil {
		fmt.Printf("Warning: initial connect failed: %v\n", err)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	_ = server.Close()
	if err := gw.Close(); err != nil {
		fmt.Printf("Warning: shutdown error: %v\n", err)
	}
	transport.Close()
	_ = removePidFile(flags.PidFile)
	return nil
}
