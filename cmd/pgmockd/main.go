// Command pgmockd runs a standalone pgmock server: a PostgreSQL
// wire-protocol mock that speaks startup negotiation, simple and extended
// query, SCRAM-SHA-256 authentication, and TLS, backed by a swappable
// query executor.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pgmock/pgmock/internal/config"
	"github.com/pgmock/pgmock/internal/httpapi"
	"github.com/pgmock/pgmock/internal/metrics"
	"github.com/pgmock/pgmock/internal/mockquery"
	"github.com/pgmock/pgmock/internal/protocol"
	"github.com/pgmock/pgmock/internal/scram"
	"github.com/pgmock/pgmock/internal/server"
	"github.com/pgmock/pgmock/internal/tlsupgrade"
)

func main() {
	configPath := flag.String("config", "configs/pgmock.yaml", "path to configuration file")
	listenAddr := flag.String("listen", "", "override listen host:port, e.g. 0.0.0.0:5432")
	authMethod := flag.String("auth", "", "override auth method: trust or scram-sha-256")
	tlsCert := flag.String("tls-cert", "", "override TLS certificate file")
	tlsKey := flag.String("tls-key", "", "override TLS key file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := loadConfig(*configPath, *listenAddr, *authMethod, *tlsCert, *tlsKey)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	collector := metrics.New()

	protoCfg, err := buildProtocolConfig(cfg)
	if err != nil {
		log.Fatalf("building protocol configuration: %v", err)
	}

	manager := server.NewManager(server.Config{
		Host:                 cfg.Listen.Host,
		Port:                 cfg.Listen.Port,
		MaxConnections:       cfg.Session.MaxConnections,
		IdleTimeout:          cfg.Session.IdleTimeout,
		IdleReaperInterval:   cfg.Session.IdleReaperInterval,
		ShutdownDrainTimeout: cfg.Session.ShutdownDrainTimeout,
		ProtocolConfig:       protoCfg,
	}, logger, collector)

	go func() {
		if err := manager.Serve(); err != nil {
			logger.Error("server stopped", slog.String("err", err.Error()))
		}
	}()

	var httpServer *httpapi.Server
	if cfg.HTTP.Enabled {
		httpServer = httpapi.NewServer(cfg.HTTP.Bind, manager, collector)
		go func() {
			if err := <-httpServer.Start(); err != nil {
				logger.Error("http monitoring server stopped", slog.String("err", err.Error()))
			}
		}()
		logger.Info("monitoring endpoint listening", slog.String("addr", cfg.HTTP.Bind))
	}

	var configWatcher *config.Watcher
	if watcher, err := config.NewWatcher(*configPath, func(reloaded *config.Config) {
		logger.Info("configuration reload observed; restart to apply listener/auth/TLS changes")
	}); err != nil {
		logger.Warn("config hot-reload disabled", slog.String("err", err.Error()))
	} else {
		configWatcher = watcher
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Session.ShutdownDrainTimeout+5*time.Second)
	defer cancel()

	if err := manager.Shutdown(ctx); err != nil {
		logger.Error("error during server shutdown", slog.String("err", err.Error()))
	}

	if httpServer != nil {
		if err := httpServer.Stop(ctx); err != nil {
			logger.Error("error stopping monitoring server", slog.String("err", err.Error()))
		}
	}

	if configWatcher != nil {
		if err := configWatcher.Stop(); err != nil {
			logger.Warn("error stopping config watcher", slog.String("err", err.Error()))
		}
	}

	logger.Info("shutdown complete")
}

func loadConfig(path, listenAddr, authMethod, tlsCert, tlsKey string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if listenAddr != "" {
		host, port, err := splitHostPort(listenAddr)
		if err != nil {
			return nil, fmt.Errorf("parsing -listen: %w", err)
		}
		cfg.Listen.Host, cfg.Listen.Port = host, port
	}
	if authMethod != "" {
		cfg.Auth.Method = authMethod
	}
	if tlsCert != "" {
		cfg.TLS.CertFile = tlsCert
		cfg.TLS.Enabled = true
	}
	if tlsKey != "" {
		cfg.TLS.KeyFile = tlsKey
		cfg.TLS.Enabled = true
	}

	return cfg, nil
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q, expected host:port", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in address %q", addr)
	}
	return host, port, nil
}

func buildProtocolConfig(cfg *config.Config) (*protocol.Config, error) {
	protoCfg := &protocol.Config{
		ServerVersion: cfg.Session.ServerVersion,
		DevMode:       cfg.Session.DevMode,
		Executor:      mockquery.Executor{ServerVersion: cfg.Session.ServerVersion},
	}

	switch cfg.Auth.Method {
	case "scram-sha-256":
		creds, err := scram.NewCredentials(cfg.Auth.Password, cfg.Auth.SCRAMIterations)
		if err != nil {
			return nil, fmt.Errorf("deriving SCRAM credentials: %w", err)
		}
		protoCfg.AuthMode = protocol.AuthSCRAM
		protoCfg.Credentials = creds
	default:
		protoCfg.AuthMode = protocol.AuthTrust
	}

	if cfg.TLS.TLSEnabled() {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading TLS material: %w", err)
		}

		tlsConfig := &tls.Config{
			Certificates: []tls.Certificate{cert},
		}

		if cfg.TLS.CAFile != "" {
			pem, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("reading tls.ca_file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates parsed from tls.ca_file %q", cfg.TLS.CAFile)
			}
			tlsConfig.ClientCAs = pool
			if cfg.TLS.RejectUnauthorized {
				tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
			} else {
				tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
			}
		}

		protoCfg.TLS = &tlsupgrade.Config{TLSConfig: tlsConfig}
	}

	return protoCfg, nil
}
