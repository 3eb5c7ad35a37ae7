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

// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full environment surface of the service. Secrets stay in
// the environment; nothing here is logged verbatim.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// RedisAddr empty selects the in-memory store (single-instance demo
	// mode only).
	RedisAddr string `env:"REDIS_ADDR"`

	// MaxSentenceLen is the product-variant sentence ceiling (30 for the
	// gossip variant, 150 for stories).
	MaxSentenceLen int `env:"MAX_SENTENCE_LEN" envDefault:"150"`

	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	RazorpayKeyID     string `env:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret string `env:"RAZORPAY_KEY_SECRET"`

	CashfreeAppID     string `env:"CASHFREE_APP_ID"`
	CashfreeKeySecret string `env:"CASHFREE_KEY_SECRET"`
	CashfreeSandbox   bool   `env:"CASHFREE_SANDBOX" envDefault:"false"`

	// BaseURL is the public URL of this deployment; return and webhook
	// URLs for created orders derive from it.
	BaseURL string `env:"BASE_URL"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// ReturnURL is where a hosted checkout sends the user back.
func (c *Config) ReturnURL() string { return c.BaseURL + "/success" }

// NotifyURL is where the provider posts webhooks.
func (c *Config) NotifyURL() string { return c.BaseURL + "/api/webhooks/cashfree" }
