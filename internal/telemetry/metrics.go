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

// Package telemetry exposes the service's operational counters. Metrics are
// registered eagerly; if no /metrics endpoint is mounted the registration
// is harmless. Labels are bounded (provider and kind enums only).
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	paymentsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storyfund_payments_recorded_total",
		Help: "Payments recorded for the first time, by provider",
	}, []string{"provider"})
	duplicatePayments = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storyfund_duplicate_payments_total",
		Help: "Recording attempts suppressed by the idempotency guard (webhook redeliveries, double verification)",
	})
	wastedRanks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storyfund_wasted_ranks_total",
		Help: "Ranks issued by the sequencer whose guarded record write lost the creation race",
	})
	webhookRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storyfund_webhook_rejected_total",
		Help: "Webhook deliveries rejected before processing, by reason",
	}, []string{"reason"})
	quotaDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storyfund_quota_denied_total",
		Help: "Content mutations denied because the payment had no remaining quota, by kind",
	}, []string{"kind"})
	contentCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storyfund_content_created_total",
		Help: "Content units and sentences created, by kind",
	}, []string{"kind"})
	gatewayErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storyfund_gateway_errors_total",
		Help: "Failed or timed-out verification calls to payment providers, by provider",
	}, []string{"provider"})
)

func init() {
	prometheus.MustRegister(paymentsRecorded, duplicatePayments, wastedRanks,
		webhookRejected, quotaDenied, contentCreated, gatewayErrors)
}

func ObservePaymentRecorded(provider string) { paymentsRecorded.WithLabelValues(provider).Inc() }
func ObserveDuplicatePayment()               { duplicatePayments.Inc() }
func ObserveWastedRank()                     { wastedRanks.Inc() }
func ObserveWebhookRejected(reason string)   { webhookRejected.WithLabelValues(reason).Inc() }
func ObserveQuotaDenied(kind string)         { quotaDenied.WithLabelValues(kind).Inc() }
func ObserveContentCreated(kind string)      { contentCreated.WithLabelValues(kind).Inc() }
func ObserveGatewayError(provider string)    { gatewayErrors.WithLabelValues(provider).Inc() }
