// Package main is the authdns process entry point: it loads
// configuration and zones, wires the resolution core to a UDP/TCP
// listener, and optionally starts the admin introspection surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dnsforge/authdns/pkg/adminapi"
	"github.com/dnsforge/authdns/pkg/config"
	"github.com/dnsforge/authdns/pkg/dnssec"
	"github.com/dnsforge/authdns/pkg/events"
	dnsio "github.com/dnsforge/authdns/pkg/io"
	"github.com/dnsforge/authdns/pkg/resolver"
	"github.com/dnsforge/authdns/pkg/security"
	"github.com/dnsforge/authdns/pkg/server"
	"github.com/dnsforge/authdns/pkg/zonestore"
)

const version = "0.1.0-dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file (defaults built in if unset)")
	flag.Parse()

	log.Printf("starting authdns v%s", version)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cache, err := loadZones(cfg.Zones)
	if err != nil {
		log.Fatalf("load zones: %v", err)
	}
	log.Printf("loaded %d zone(s)", len(cache.Zones()))

	hook, err := buildDNSSECHook(cfg.DNSSEC)
	if err != nil {
		log.Fatalf("build DNSSEC hook: %v", err)
	}

	sink := events.NewChannelSink(1024, func(e events.Event) {
		log.Printf("telemetry: dropped event kind=%s qname=%s", e.Kind, e.Qname)
	})
	defer sink.Close()

	if cfg.Logging.EnableQueryLog {
		go logEvents(sink.Events())
	}

	res := resolver.New(cache, nil, hook, sink, resolver.Config{RootHints: cfg.Server.RootHints})

	handler := buildHandler(res, cfg.Security)

	udpListener, tcpListener := startListeners(cfg.Server, handler)

	var adminSrv *adminapi.Server
	if cfg.AdminAPI.Enabled {
		adminSrv = startAdminAPI(cfg.AdminAPI, cache, hook)
	}

	waitAndShutdown(cfg.Server.GracefulShutdownTimeout, udpListener, tcpListener, adminSrv)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}

	return config.LoadFromFile(path)
}

func loadZones(zones []config.ZoneConfig) (*zonestore.MemCache, error) {
	cache := zonestore.NewMemCache()

	for _, z := range zones {
		switch {
		case z.File != "":
			if err := zonestore.LoadZoneFile(cache, z.File, z.Origin); err != nil {
				return nil, fmt.Errorf("zone %s: %w", z.Origin, err)
			}
		case z.JSONFile != "":
			if err := zonestore.LoadZoneJSONFile(cache, z.JSONFile); err != nil {
				return nil, fmt.Errorf("zone %s: %w", z.Origin, err)
			}
		}
	}

	return cache, nil
}

func buildDNSSECHook(cfg config.DNSSECConfig) (dnssec.Hook, error) {
	if len(cfg.Zones) == 0 {
		return dnssec.NoopHook{}, nil
	}

	keysets := make([]*dnssec.ZoneKeySet, 0, len(cfg.Zones))
	for _, z := range cfg.Zones {
		keys, err := dnssec.LoadSigningKeys(z.KeyFiles)
		if err != nil {
			return nil, fmt.Errorf("zone %s: %w", z.Origin, err)
		}

		keysets = append(keysets, &dnssec.ZoneKeySet{
			Zone:        z.Origin,
			Keys:        keys,
			SigValidity: z.SigValidity,
		})
	}

	return dnssec.NewSigningHook(keysets...), nil
}

func buildHandler(res *resolver.Resolver, cfg config.SecurityConfig) *server.Handler {
	var limiter *security.RateLimiter
	if cfg.EnableRateLimiting {
		rlConfig := security.DefaultRateLimitConfig()
		rlConfig.QueriesPerSecond = cfg.QueriesPerSecond
		rlConfig.BurstSize = cfg.BurstSize
		limiter = security.NewRateLimiter(rlConfig)
	}

	validator := security.NewQueryValidator(security.DefaultValidationConfig())

	return server.NewHandler(res, limiter, validator, server.Config{
		EnableQueryValidation: cfg.EnableQueryValidation,
		EnableRateLimiting:    cfg.EnableRateLimiting,
	})
}

func startListeners(cfg config.ServerConfig, handler *server.Handler) (*dnsio.UDPListener, *dnsio.TCPListener) {
	listenerConfig := dnsio.DefaultListenerConfig(cfg.ListenAddress)
	listenerConfig.NumWorkers = cfg.NumWorkers

	udpListener, err := dnsio.NewUDPListener(listenerConfig, handler)
	if err != nil {
		log.Fatalf("create UDP listener: %v", err)
	}
	if err := udpListener.Start(); err != nil {
		log.Fatalf("start UDP listener: %v", err)
	}
	log.Printf("listening on UDP %s with %d workers", udpListener.Addr(), cfg.NumWorkers)

	var tcpListener *dnsio.TCPListener
	if cfg.EnableTCP {
		tcpListener, err = dnsio.NewTCPListener(listenerConfig, handler)
		if err != nil {
			log.Fatalf("create TCP listener: %v", err)
		}
		if err := tcpListener.Start(); err != nil {
			log.Fatalf("start TCP listener: %v", err)
		}
		log.Printf("listening on TCP %s", tcpListener.Addr())
	}

	return udpListener, tcpListener
}

func startAdminAPI(cfg config.AdminAPIConfig, cache zonestore.Cache, hook dnssec.Hook) *adminapi.Server {
	srv, err := adminapi.NewServer(adminapi.Config{
		ListenAddress: cfg.ListenAddress,
		Username:      cfg.Username,
		PasswordHash:  cfg.PasswordHash,
		TokenExpiry:   cfg.TokenExpiry,
		CORSOrigins:   cfg.CORSOrigins,
	}, cache, hook)
	if err != nil {
		log.Fatalf("build admin API: %v", err)
	}

	go func() {
		log.Printf("admin API listening on %s", cfg.ListenAddress)
		if err := srv.Start(); err != nil {
			log.Printf("admin API stopped: %v", err)
		}
	}()

	return srv
}

func logEvents(ch <-chan events.Event) {
	for e := range ch {
		log.Printf("query id=%s kind=%s qname=%s qtype=%d rcode=%d client=%s",
			e.ID, e.Kind, e.Qname, e.Qtype, e.Rcode, e.ClientIP)
	}
}

func waitAndShutdown(timeout time.Duration, udpListener *dnsio.UDPListener, tcpListener *dnsio.TCPListener, adminSrv *adminapi.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Printf("received signal %v, shutting down", sig)

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := udpListener.Stop(); err != nil {
		log.Printf("stop UDP listener: %v", err)
	}
	if tcpListener != nil {
		if err := tcpListener.Stop(); err != nil {
			log.Printf("stop TCP listener: %v", err)
		}
	}
	if adminSrv != nil {
		if err := adminSrv.Shutdown(ctx); err != nil {
			log.Printf("stop admin API: %v", err)
		}
	}

	log.Println("shutdown complete")
}
