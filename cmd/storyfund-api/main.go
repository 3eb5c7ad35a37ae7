// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the entry point of the storyfund API: paid, rank-ordered
// collaborative stories. It wires the shared store, the entitlement
// ledger, the two payment-provider adapters and the quota-gated content
// service behind one HTTP server, and manages graceful shutdown.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"storyfund/internal/api"
	"storyfund/internal/config"
	"storyfund/internal/core"
	"storyfund/internal/gateway"
	"storyfund/internal/persistence"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file loaded")
	}
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Could not load configuration")
	}

	// Operational overrides. Everything else comes from the environment.
	httpAddr := flag.String("http_addr", cfg.HTTPAddr, "HTTP listen address (e.g., :8080)")
	storeSelector := flag.String("store", "", "Store adapter: redis|memory. Default: redis when REDIS_ADDR is set, memory otherwise")
	flag.Parse()

	store := buildStore(*storeSelector, cfg.RedisAddr)

	ledger := core.NewLedger(store)
	content := core.NewContentServiceWithLimit(store, ledger, cfg.MaxSentenceLen)
	rzp := gateway.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.GatewayTimeout)
	cf := gateway.NewCashfree(cfg.CashfreeAppID, cfg.CashfreeKeySecret, cfg.CashfreeSandbox,
		cfg.ReturnURL(), cfg.NotifyURL(), cfg.GatewayTimeout)

	server := api.NewServer(ledger, content, rzp, cf, cfg.CashfreeKeySecret)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:         *httpAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", *httpAddr).Info("storyfund API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("Server shutdown failed")
	}
	log.Info("Server gracefully stopped")
}

// buildStore selects the store adapter. The in-memory store keeps the demo
// dependency-free but is single-instance only; any real deployment needs
// Redis so the atomic sections are shared across instances.
func buildStore(selector, redisAddr string) persistence.Store {
	switch selector {
	case "redis":
		if redisAddr == "" {
			log.Fatal("store=redis requires REDIS_ADDR")
		}
	case "memory":
		redisAddr = ""
	case "":
		// Fall through to the address-driven default.
	default:
		log.WithField("store", selector).Fatal("Unknown store adapter")
	}
	if redisAddr != "" {
		log.WithField("addr", redisAddr).Info("Using Redis store")
		return persistence.NewRedisStore(redisAddr)
	}
	log.Warn("Using in-memory store; entitlements will not survive a restart and cannot be shared across instances")
	return persistence.NewMemoryStore()
}
