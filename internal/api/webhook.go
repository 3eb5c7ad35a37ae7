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

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"math"
	"net/http"

	log "github.com/sirupsen/logrus"

	"storyfund/internal/core"
	"storyfund/internal/gateway"
	"storyfund/internal/telemetry"
)

// maxWebhookBody caps the raw payload we are willing to sign-check.
const maxWebhookBody = 1 << 20

// paymentFormOrderEvent is the only Cashfree event that settles a payment
// form order; everything else is acknowledged and dropped.
const paymentFormOrderEvent = "PAYMENT_FORM_ORDER_WEBHOOK"

type cashfreeWebhook struct {
	Type string `json:"type"`
	Data struct {
		Order struct {
			OrderID     string  `json:"order_id"`
			OrderStatus string  `json:"order_status"`
			OrderAmount float64 `json:"order_amount"` // rupees on the webhook
		} `json:"order"`
	} `json:"data"`
}

// handleCashfreeWebhook is the push-verification path. Authenticity first:
// the HMAC over timestamp+rawBody must match before the payload is even
// parsed. After that, every recognized PAID order funnels into the same
// idempotent recording the pull path uses, so redeliveries are harmless.
//
// Recognized deliveries are acknowledged 200 even when downstream recording
// fails: a non-2xx here only provokes retry storms, and the pull
// verification path can still settle the order later.
func (s *Server) handleCashfreeWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("x-webhook-signature")
	timestamp := r.Header.Get("x-webhook-timestamp")
	if signature == "" || timestamp == "" {
		telemetry.ObserveWebhookRejected("missing_headers")
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "missing webhook headers"})
		return
	}
	if s.webhookSecret == "" {
		log.Error("Webhook secret not configured; rejecting delivery")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "webhook secret not configured"})
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unreadable body"})
		return
	}
	if !validSignature(s.webhookSecret, timestamp, raw, signature) {
		telemetry.ObserveWebhookRejected("signature")
		log.WithField("body_len", len(raw)).Warn("Invalid webhook signature")
		s.writeError(w, core.ErrSignatureInvalid)
		return
	}

	var payload cashfreeWebhook
	if err := json.Unmarshal(raw, &payload); err != nil {
		telemetry.ObserveWebhookRejected("malformed")
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "malformed payload"})
		return
	}
	if payload.Type != paymentFormOrderEvent {
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true, "eventType": payload.Type})
		return
	}
	order := payload.Data.Order
	if order.OrderID == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true, "error": "missing order data"})
		return
	}
	if order.OrderStatus != "PAID" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true, "status": "not_paid"})
		return
	}

	rec, err := s.ledger.Record(r.Context(), core.VerifiedPayment{
		PaymentID: gateway.PaymentIdentifier(order.OrderID),
		OrderID:   order.OrderID,
		Provider:  "cashfree",
		Amount:    int64(math.Round(order.OrderAmount)),
	})
	if err != nil {
		log.WithError(err).WithField("order_id", order.OrderID).Error("Webhook recording failed; pull verification can still settle this order")
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true, "processed": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"received": true, "processed": true, "rank": rec.Rank})
}

// validSignature checks base64(HMAC-SHA256(timestamp+rawBody)) in constant
// time.
func validSignature(secret, timestamp string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
