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

// Package api implements the public-facing HTTP server. It translates
// requests into ledger and content-service calls and maps the error
// taxonomy onto status codes; no business rule lives here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"storyfund/internal/core"
	"storyfund/internal/gateway"
)

// Server wires the HTTP surface to the ledger, content service and the two
// provider adapters.
type Server struct {
	ledger        *core.Ledger
	content       *core.ContentService
	razorpay      *gateway.Razorpay
	cashfree      *gateway.Cashfree
	webhookSecret string
}

// NewServer creates and configures a new API server.
func NewServer(ledger *core.Ledger, content *core.ContentService, rzp *gateway.Razorpay, cf *gateway.Cashfree, webhookSecret string) *Server {
	return &Server{
		ledger:        ledger,
		content:       content,
		razorpay:      rzp,
		cashfree:      cf,
		webhookSecret: webhookSecret,
	}
}

// RegisterRoutes sets up the HTTP routes for the server on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/verify-payment", s.handleVerifyRazorpay)
	mux.HandleFunc("GET /api/verify-payment-cashfree", s.handleVerifyCashfree)
	mux.HandleFunc("POST /api/webhooks/cashfree", s.handleCashfreeWebhook)
	mux.HandleFunc("POST /api/orders/cashfree", s.handleCreateCashfreeOrder)
	mux.HandleFunc("GET /api/payment-status", s.handlePaymentStatus)
	mux.HandleFunc("GET /api/check-payment", s.handleCheckPayment)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/stories", s.handleListStories)
	mux.HandleFunc("POST /api/stories/create", s.handleCreateStory)
	mux.HandleFunc("GET /api/stories/{id}", s.handleGetStory)
	mux.HandleFunc("POST /api/stories/{id}/add-sentence", s.handleAddSentence)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// handleVerifyRazorpay is the Razorpay pull path: fetch the payment from
// the gateway and, if captured, record it idempotently.
func (s *Server) handleVerifyRazorpay(w http.ResponseWriter, r *http.Request) {
	paymentID := r.URL.Query().Get("payment_id")
	if paymentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "missing payment_id"})
		return
	}
	amount, captured, err := s.razorpay.Verify(r.Context(), paymentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !captured {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false})
		return
	}
	rec, err := s.ledger.Record(r.Context(), core.VerifiedPayment{
		PaymentID: paymentID,
		Provider:  "razorpay",
		Amount:    amount,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeRecord(w, rec)
}

// handleVerifyCashfree is the Cashfree pull path: callback URLs deliver an
// order id; resolve it against the webhook's order mapping first so both
// paths settle on one record.
func (s *Server) handleVerifyCashfree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	identifier := q.Get("order_id")
	if identifier == "" {
		identifier = q.Get("payment_id")
	}
	if identifier == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "missing order_id or payment_id"})
		return
	}

	canonical := gateway.PaymentIdentifier(identifier)
	if mapped, ok, err := s.ledger.ResolveOrder(r.Context(), identifier); err != nil {
		s.writeError(w, err)
		return
	} else if ok {
		canonical = mapped
	}
	// Settled already (webhook or an earlier verification)? Return as-is.
	if rec, err := s.ledger.Lookup(r.Context(), canonical); err == nil {
		writeRecord(w, rec)
		return
	} else if !errors.Is(err, core.ErrPaymentNotFound) {
		s.writeError(w, err)
		return
	}

	amount, err := s.cashfreeAmount(r.Context(), identifier, q.Get("amount"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "could not determine payment amount; provide amount parameter or configure Cashfree credentials",
		})
		return
	}
	rec, err := s.ledger.Record(r.Context(), core.VerifiedPayment{
		PaymentID: canonical,
		OrderID:   identifier,
		Provider:  "cashfree",
		Amount:    amount,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeRecord(w, rec)
}

// cashfreeAmount resolves the amount for the pull path: the gateway's order
// API when credentials exist (requires PAID status), otherwise the
// caller-supplied hint from the pre-configured payment link.
func (s *Server) cashfreeAmount(ctx context.Context, orderID, hint string) (int64, error) {
	if s.cashfree.Configured() {
		amount, paid, err := s.cashfree.FetchOrder(ctx, orderID)
		if err != nil {
			return 0, err
		}
		if !paid {
			return 0, nil
		}
		return amount, nil
	}
	if hint == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(hint, 64)
	if err != nil || f <= 0 {
		return 0, nil
	}
	return int64(f + 0.5), nil
}

// handleCreateCashfreeOrder registers a hosted order and returns the
// payment link.
func (s *Server) handleCreateCashfreeOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "amount must be a positive integer"})
		return
	}
	order, err := s.cashfree.CreateOrder(r.Context(), req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// handlePaymentStatus reports whether the webhook has settled an order yet.
// A missing mapping is "pending", never "failed": the webhook may simply
// not have landed.
func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "missing order_id"})
		return
	}
	paymentID, ok, err := s.ledger.ResolveOrder(r.Context(), orderID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "pending": true})
		return
	}
	rec, err := s.ledger.Lookup(r.Context(), paymentID)
	if err != nil {
		if errors.Is(err, core.ErrPaymentNotFound) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": false})
			return
		}
		s.writeError(w, err)
		return
	}
	writeRecord(w, rec)
}

// handleCheckPayment is the entitlement query.
func (s *Server) handleCheckPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := r.URL.Query().Get("payment_id")
	if paymentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "missing payment_id"})
		return
	}
	ent, err := s.ledger.Entitlements(r.Context(), paymentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentID     string `json:"paymentId"`
		Title         string `json:"title"`
		FirstSentence string `json:"firstSentence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "malformed request body"})
		return
	}
	story, sentence, err := s.content.CreateStory(r.Context(), req.PaymentID, req.Title, req.FirstSentence)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"storyId":    story.ID,
		"sentenceId": sentence.ID,
		"rank":       sentence.Rank,
	})
}

func (s *Server) handleAddSentence(w http.ResponseWriter, r *http.Request) {
	storyID := r.PathValue("id")
	var req struct {
		PaymentID string `json:"paymentId"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "malformed request body"})
		return
	}
	sentence, err := s.content.AddSentence(r.Context(), req.PaymentID, storyID, req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"sentenceId": sentence.ID,
		"rank":       sentence.Rank,
	})
}

func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	stories, err := s.content.ListStories(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stories": stories})
}

func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request) {
	story, err := s.content.GetStory(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, story)
}

// writeError maps the error taxonomy to status codes. Validation and quota
// errors carry their message; gateway and store failures surface a generic
// retry hint without internals.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
	case errors.Is(err, core.ErrPaymentNotFound):
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "payment not found"})
	case errors.Is(err, core.ErrStoryNotFound):
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "story not found"})
	case errors.Is(err, core.ErrQuotaExceeded):
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"error": err.Error()})
	case errors.Is(err, core.ErrSignatureInvalid):
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": err.Error()})
	case errors.Is(err, core.ErrGatewayTimeout):
		// Unknown, not failed: tell the client to retry.
		writeJSON(w, http.StatusGatewayTimeout, map[string]interface{}{"success": false, "pending": true, "error": "payment status unknown, please retry"})
	case errors.Is(err, core.ErrGatewayUnavailable):
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"success": false, "error": "payment provider unavailable, please try again"})
	default:
		log.WithError(err).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "internal error, please try again"})
	}
}

// writeRecord is the shared success shape of the verification and status
// endpoints.
func writeRecord(w http.ResponseWriter, rec *core.PaymentRecord) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"paymentId":    rec.PaymentID,
		"orderId":      rec.OrderID,
		"provider":     rec.Provider,
		"amount":       rec.Amount,
		"tier":         rec.Tier,
		"rank":         rec.Rank,
		"maxSentences": rec.MaxSentences,
		"maxStories":   rec.MaxStories,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

// ListenAndServe starts the HTTP server on the specified address with
// conservative timeouts. Graceful shutdown is handled by the caller.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("API server listening")
	return httpServer.ListenAndServe()
}
