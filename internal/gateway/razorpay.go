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

// Package gateway holds the payment-provider adapters. Both providers
// funnel into the same idempotent ledger recording; the adapters only
// verify with their gateway and normalize identifiers and amounts.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"storyfund/internal/core"
	"storyfund/internal/telemetry"
)

// DefaultTimeout bounds every gateway round-trip. A timeout means the
// payment state is unknown, never that the payment failed.
const DefaultTimeout = 10 * time.Second

const razorpayBaseURL = "https://api.razorpay.com"

// Razorpay is the pull-verification adapter: given a gateway payment id it
// queries the payments endpoint and reports whether the amount was
// captured.
type Razorpay struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
}

// NewRazorpay builds the adapter with the production endpoint.
func NewRazorpay(keyID, keySecret string, timeout time.Duration) *Razorpay {
	return NewRazorpayWithBaseURL(keyID, keySecret, razorpayBaseURL, timeout)
}

// NewRazorpayWithBaseURL overrides the endpoint. Used by tests.
func NewRazorpayWithBaseURL(keyID, keySecret, baseURL string, timeout time.Duration) *Razorpay {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Razorpay{keyID: keyID, keySecret: keySecret, baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type razorpayPayment struct {
	Status string `json:"status"`
	Amount int64  `json:"amount"` // paise
}

// Verify fetches the payment and returns its whole-rupee amount when the
// status is "captured". captured=false with a nil error means the gateway
// answered but the payment is not (yet) captured.
func (r *Razorpay) Verify(ctx context.Context, paymentID string) (amount int64, captured bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/payments/%s", r.baseURL, paymentID), nil)
	if err != nil {
		return 0, false, fmt.Errorf("build razorpay request: %w", err)
	}
	req.SetBasicAuth(r.keyID, r.keySecret)

	resp, err := r.client.Do(req)
	if err != nil {
		telemetry.ObserveGatewayError("razorpay")
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return 0, false, fmt.Errorf("%w: razorpay: %v", core.ErrGatewayTimeout, err)
		}
		return 0, false, fmt.Errorf("%w: razorpay: %v", core.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, false, fmt.Errorf("%w: razorpay payment %s", core.ErrPaymentNotFound, paymentID)
	case resp.StatusCode != http.StatusOK:
		telemetry.ObserveGatewayError("razorpay")
		log.WithField("status", resp.StatusCode).Warn("Razorpay verification returned non-200")
		return 0, false, fmt.Errorf("%w: razorpay status %d", core.ErrGatewayUnavailable, resp.StatusCode)
	}

	var p razorpayPayment
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return 0, false, fmt.Errorf("%w: decode razorpay payment: %v", core.ErrGatewayUnavailable, err)
	}
	if p.Status != "captured" {
		return 0, false, nil
	}
	return subunitsToWhole(p.Amount), true, nil
}

// subunitsToWhole rounds a smallest-subunit amount (paise) to whole
// currency units. All rounding happens here, once, before the ledger or the
// tier table ever see the value.
func subunitsToWhole(subunits int64) int64 {
	return int64(math.Round(float64(subunits) / 100.0))
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
