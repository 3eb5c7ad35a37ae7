package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storyfund/internal/core"
)

func TestCashfree_FetchOrder_Paid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-client-id") != "app" || r.Header.Get("x-client-secret") != "sec" {
			t.Errorf("auth headers not sent")
		}
		if r.Header.Get("x-api-version") == "" {
			t.Errorf("api version header missing")
		}
		if r.URL.Path != "/pg/orders/ord_1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"order_id":"ord_1","order_status":"PAID","order_amount":500}`)
	}))
	defer srv.Close()

	cf := NewCashfreeWithBaseURL("app", "sec", srv.URL, "http://return", "http://notify", time.Second)
	amount, paid, err := cf.FetchOrder(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("fetch order: %v", err)
	}
	if !paid || amount != 5 {
		t.Fatalf("order = (%d, %v), want (5, true)", amount, paid)
	}
}

func TestCashfree_FetchOrder_NotPaid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"order_id":"ord_1","order_status":"ACTIVE","order_amount":500}`)
	}))
	defer srv.Close()

	cf := NewCashfreeWithBaseURL("app", "sec", srv.URL, "", "", time.Second)
	_, paid, err := cf.FetchOrder(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("fetch order: %v", err)
	}
	if paid {
		t.Fatalf("unpaid order reported as paid")
	}
}

func TestCashfree_FetchOrder_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	cf := NewCashfreeWithBaseURL("app", "sec", srv.URL, "", "", 20*time.Millisecond)
	if _, _, err := cf.FetchOrder(context.Background(), "ord_slow"); !errors.Is(err, core.ErrGatewayTimeout) {
		t.Fatalf("err = %v, want ErrGatewayTimeout", err)
	}
}

func TestCashfree_CreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/pg/orders" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode order body: %v", err)
		}
		if body["order_amount"] != float64(11) {
			t.Errorf("order_amount = %v, want 11", body["order_amount"])
		}
		if body["notify_url"] != "http://notify" {
			t.Errorf("notify_url = %v", body["notify_url"])
		}
		ret, _ := body["return_url"].(string)
		if !strings.HasPrefix(ret, "http://return?order_id=order_") {
			t.Errorf("return_url = %q, want order id appended", ret)
		}
		fmt.Fprint(w, `{"order_id":"ignored","payment_link":"https://pay.example/link"}`)
	}))
	defer srv.Close()

	cf := NewCashfreeWithBaseURL("app", "sec", srv.URL, "http://return", "http://notify", time.Second)
	order, err := cf.CreateOrder(context.Background(), 11)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if !strings.HasPrefix(order.OrderID, "order_") {
		t.Fatalf("order id = %q, want order_ prefix", order.OrderID)
	}
	if order.PaymentLink != "https://pay.example/link" {
		t.Fatalf("payment link = %q", order.PaymentLink)
	}
}

func TestCashfree_Configured(t *testing.T) {
	if NewCashfree("", "", false, "", "", 0).Configured() {
		t.Fatalf("empty credentials reported as configured")
	}
	if !NewCashfree("app", "sec", true, "", "", 0).Configured() {
		t.Fatalf("credentials not recognized")
	}
}

func TestPaymentIdentifier(t *testing.T) {
	if got := PaymentIdentifier("ord_9"); got != "cashfree_ord_9" {
		t.Fatalf("PaymentIdentifier = %q, want cashfree_ord_9", got)
	}
}
