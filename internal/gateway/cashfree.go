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

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"storyfund/internal/core"
	"storyfund/internal/telemetry"
)

const (
	cashfreeProdURL    = "https://api.cashfree.com"
	cashfreeSandboxURL = "https://sandbox.cashfree.com"
	cashfreeAPIVersion = "2023-08-01"
)

// Cashfree covers the provider's pull side: order status queries for
// callback-URL verification and hosted-order creation. The push side (the
// signed webhook) lives in the API layer because it is an inbound surface.
type Cashfree struct {
	appID     string
	secretKey string
	baseURL   string
	returnURL string
	notifyURL string
	client    *http.Client
}

// NewCashfree builds the adapter. sandbox selects the test endpoint.
// returnURL/notifyURL are baked into created orders.
func NewCashfree(appID, secretKey string, sandbox bool, returnURL, notifyURL string, timeout time.Duration) *Cashfree {
	base := cashfreeProdURL
	if sandbox {
		base = cashfreeSandboxURL
	}
	return NewCashfreeWithBaseURL(appID, secretKey, base, returnURL, notifyURL, timeout)
}

// NewCashfreeWithBaseURL overrides the endpoint. Used by tests.
func NewCashfreeWithBaseURL(appID, secretKey, baseURL, returnURL, notifyURL string, timeout time.Duration) *Cashfree {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Cashfree{
		appID:     appID,
		secretKey: secretKey,
		baseURL:   baseURL,
		returnURL: returnURL,
		notifyURL: notifyURL,
		client:    &http.Client{Timeout: timeout},
	}
}

// Configured reports whether API credentials are present. Without them the
// pull path can still record a payment from a caller-supplied amount hint.
func (c *Cashfree) Configured() bool { return c.appID != "" && c.secretKey != "" }

type cashfreeOrder struct {
	OrderID     string  `json:"order_id"`
	OrderStatus string  `json:"order_status"`
	OrderAmount float64 `json:"order_amount"` // smallest subunit on the order API
	PaymentLink string  `json:"payment_link"`
}

// FetchOrder queries the order endpoint and returns the whole-rupee amount
// and whether the order is PAID.
func (c *Cashfree) FetchOrder(ctx context.Context, orderID string) (amount int64, paid bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/pg/orders/%s", c.baseURL, orderID), nil)
	if err != nil {
		return 0, false, fmt.Errorf("build cashfree request: %w", err)
	}
	c.authHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		telemetry.ObserveGatewayError("cashfree")
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return 0, false, fmt.Errorf("%w: cashfree: %v", core.ErrGatewayTimeout, err)
		}
		return 0, false, fmt.Errorf("%w: cashfree: %v", core.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, false, fmt.Errorf("%w: cashfree order %s", core.ErrPaymentNotFound, orderID)
	case resp.StatusCode != http.StatusOK:
		telemetry.ObserveGatewayError("cashfree")
		log.WithField("status", resp.StatusCode).Warn("Cashfree order fetch returned non-200")
		return 0, false, fmt.Errorf("%w: cashfree status %d", core.ErrGatewayUnavailable, resp.StatusCode)
	}

	var o cashfreeOrder
	if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
		return 0, false, fmt.Errorf("%w: decode cashfree order: %v", core.ErrGatewayUnavailable, err)
	}
	return subunitsToWhole(int64(o.OrderAmount)), o.OrderStatus == "PAID", nil
}

// CreatedOrder is the outcome of CreateOrder: the id to track and the
// hosted payment link to send the user to.
type CreatedOrder struct {
	OrderID     string `json:"order_id"`
	PaymentLink string `json:"payment_link"`
}

// CreateOrder registers a hosted order for amount whole rupees.
func (c *Cashfree) CreateOrder(ctx context.Context, amount int64) (*CreatedOrder, error) {
	orderID := "order_" + uuid.NewString()
	body, err := json.Marshal(map[string]interface{}{
		"order_id":       orderID,
		"order_amount":   amount,
		"order_currency": "INR",
		"customer_details": map[string]string{
			"customer_id":    "anon",
			"customer_email": "anon@example.com",
			"customer_phone": "9999999999",
		},
		"return_url": fmt.Sprintf("%s?order_id=%s", c.returnURL, orderID),
		"notify_url": c.notifyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal cashfree order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pg/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build cashfree request: %w", err)
	}
	c.authHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		telemetry.ObserveGatewayError("cashfree")
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: cashfree: %v", core.ErrGatewayTimeout, err)
		}
		return nil, fmt.Errorf("%w: cashfree: %v", core.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		telemetry.ObserveGatewayError("cashfree")
		return nil, fmt.Errorf("%w: cashfree status %d", core.ErrGatewayUnavailable, resp.StatusCode)
	}

	var o cashfreeOrder
	if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
		return nil, fmt.Errorf("%w: decode cashfree order: %v", core.ErrGatewayUnavailable, err)
	}
	return &CreatedOrder{OrderID: orderID, PaymentLink: o.PaymentLink}, nil
}

func (c *Cashfree) authHeaders(req *http.Request) {
	req.Header.Set("x-client-id", c.appID)
	req.Header.Set("x-client-secret", c.secretKey)
	req.Header.Set("x-api-version", cashfreeAPIVersion)
	req.Header.Set("Content-Type", "application/json")
}

// PaymentIdentifier is the canonical payment key for a Cashfree order.
func PaymentIdentifier(orderID string) string { return "cashfree_" + orderID }
