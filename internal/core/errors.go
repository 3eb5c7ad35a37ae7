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

// Package core holds the business logic of the payment-to-entitlement
// engine: the tier table, the entitlement ledger and the quota-gated
// content service.
package core

import "errors"

// Error classes. Handlers match with errors.Is and map each class to a
// status code; everything below InternalStoreError carries a user-facing
// message, the rest surface a generic retry hint.
var (
	// ErrValidation marks malformed or oversized input. Recoverable: the
	// user corrects and resubmits.
	ErrValidation = errors.New("validation failed")
	// ErrPaymentNotFound marks an unknown or expired payment identifier.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrStoryNotFound marks an unknown content unit.
	ErrStoryNotFound = errors.New("story not found")
	// ErrQuotaExceeded marks a payment with no remaining entitlement of the
	// requested kind. Terminal for that payment.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrGatewayTimeout marks a payment-provider call that did not answer
	// in time. The payment state is unknown, not failed; callers must retry.
	ErrGatewayTimeout = errors.New("gateway timeout")
	// ErrGatewayUnavailable marks a transient provider-side failure.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	// ErrSignatureInvalid marks a webhook that failed authenticity checks.
	// The payload must never be processed.
	ErrSignatureInvalid = errors.New("invalid webhook signature")
	// ErrStore marks an underlying store failure, surfaced generically.
	ErrStore = errors.New("store unavailable")
)
