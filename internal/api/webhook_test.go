package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"storyfund/internal/core"
)

// signWebhook produces the provider's signature scheme:
// base64(HMAC-SHA256(timestamp + rawBody)).
func signWebhook(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (a *testAPI) postWebhook(t *testing.T, timestamp, signature string, body []byte) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.srv.URL+"/api/webhooks/cashfree", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build webhook request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if timestamp != "" {
		req.Header.Set("x-webhook-timestamp", timestamp)
	}
	if signature != "" {
		req.Header.Set("x-webhook-signature", signature)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST webhook: %v", err)
	}
	return decodeBody(t, resp)
}

func paidOrderPayload(orderID string, amount float64) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"PAYMENT_FORM_ORDER_WEBHOOK","data":{"order":{"order_id":%q,"order_status":"PAID","order_amount":%g}}}`,
		orderID, amount))
}

func TestWebhook_PaidOrderRecordsOnce(t *testing.T) {
	api := newTestAPI(t, fakeRazorpay(t, "captured", 0).URL)
	body := paidOrderPayload("ord_wh", 11)
	ts := "1700000000"

	status, resp := api.postWebhook(t, ts, signWebhook(testWebhookSecret, ts, body), body)
	if status != http.StatusOK || resp["processed"] != true {
		t.Fatalf("delivery = (%d, %v)", status, resp)
	}

	rec, err := api.ledger.Lookup(context.Background(), "cashfree_ord_wh")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec.Tier != core.TierMaestro || rec.OrderID != "ord_wh" {
		t.Fatalf("record = %+v", rec)
	}

	// Redelivery: acknowledged, same record, no double accounting.
	status, resp = api.postWebhook(t, ts, signWebhook(testWebhookSecret, ts, body), body)
	if status != http.StatusOK || resp["rank"] != float64(rec.Rank) {
		t.Fatalf("redelivery = (%d, %v), want rank %d", status, resp, rec.Rank)
	}
	stats, err := api.ledger.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAmount != 11 || stats.CountByAmount[11] != 1 {
		t.Fatalf("stats after redelivery = %+v", stats)
	}
}

func TestWebhook_FractionalAmountRounds(t *testing.T) {
	api := newTestAPI(t, fakeRazorpay(t, "captured", 0).URL)
	body := paidOrderPayload("ord_frac", 4.99)
	ts := "1700000001"

	if status, _ := api.postWebhook(t, ts, signWebhook(testWebhookSecret, ts, body), body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	rec, err := api.ledger.Lookup(context.Background(), "cashfree_ord_frac")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec.Amount != 5 || rec.Tier != core.TierPro {
		t.Fatalf("record = %+v, want amount 5 / pro", rec)
	}
}

func TestWebhook_InvalidSignature(t *testing.T) {
	api := newTestAPI(t, fakeRazorpay(t, "captured", 0).URL)
	body := paidOrderPayload("ord_bad", 5)

	status, _ := api.postWebhook(t, "1700000000", signWebhook("wrong-secret", "1700000000", body), body)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
	if _, err := api.ledger.Lookup(context.Background(), "cashfree_ord_bad"); !errors.Is(err, core.ErrPaymentNotFound) {
		t.Fatalf("unauthenticated payload was processed: %v", err)
	}
}

func TestWebhook_TamperedBody(t *testing.T) {
	api := newTestAPI(t, fakeRazorpay(t, "captured", 0).URL)
	body := paidOrderPayload("ord_tamper", 1)
	ts := "1700000000"
	sig := signWebhook(testWebhookSecret, ts, body)

	tampered := paidOrderPayload("ord_tamper", 11)
	if status, _ := api.postWebhook(t, ts, sig, tampered); status != http.StatusUnauthorized {
		t.Fatalf("tampered body status = %d, want 401", status)
	}
}

func TestWebhook_MissingHeaders(t *testing.T) {
	api := newTestAPI(t, fakeRazorpay(t, "captured", 0).URL)
	body := paidOrderPayload("ord_x", 5)

	if status, _ := api.postWebhook(t, "", "", body); status != http.StatusBadRequest {
		t.Fatalf("no headers status = %d, want 400", status)
	}
	if status, _ := api.postWebhook(t, "1700000000", "", body); status != http.StatusBadRequest {
		t.Fatalf("no signature status = %d, want 400", status)
	}
}

func TestWebhook_UnrelatedEventAcked(t *testing.T) {
	api := newTestAPI(t, fakeRazorpay(t, "captured", 0).URL)
	body := []byte(`{"type":"PAYMENT_LINK_EVENT","data":{}}`)
	ts := "1700000000"

	status, resp := api.postWebhook(t, ts, signWebhook(testWebhookSecret, ts, body), body)
	if status != http.StatusOK || resp["received"] != true {
		t.Fatalf("unrelated event = (%d, %v), want 200 ack", status, resp)
	}
}

func TestWebhook_UnpaidOrderIgnored(t *testing.T) {
	api := newTestAPI(t, fakeRazorpay(t, "captured", 0).URL)
	body := []byte(`{"type":"PAYMENT_FORM_ORDER_WEBHOOK","data":{"order":{"order_id":"ord_unpaid","order_status":"ACTIVE","order_amount":5}}}`)
	ts := "1700000000"

	status, _ := api.postWebhook(t, ts, signWebhook(testWebhookSecret, ts, body), body)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if _, err := api.ledger.Lookup(context.Background(), "cashfree_ord_unpaid"); !errors.Is(err, core.ErrPaymentNotFound) {
		t.Fatalf("unpaid order was recorded: %v", err)
	}
}

func TestWebhook_MalformedPayload(t *testing.T) {
	api := newTestAPI(t, fakeRazorpay(t, "captured", 0).URL)
	body := []byte(`{"type": truncated`)
	ts := "1700000000"

	if status, _ := api.postWebhook(t, ts, signWebhook(testWebhookSecret, ts, body), body); status != http.StatusBadRequest {
		t.Fatalf("malformed payload status = %d, want 400", status)
	}
}
