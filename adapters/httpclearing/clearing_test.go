package httpclearing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/deltran/coordinator/internal/domain"
	"github.com/deltran/coordinator/internal/errs"
	"github.com/deltran/coordinator/internal/ports"
)

func testSubmission(t *testing.T) ports.ClearingSubmission {
	t.Helper()
	debit, err := domain.NewAccountNumber("US00000001")
	if err != nil {
		t.Fatal(err)
	}
	credit, err := domain.NewAccountNumber("US00000002")
	if err != nil {
		t.Fatal(err)
	}
	amount, err := domain.NewMoney("100.00", "USD")
	if err != nil {
		t.Fatal(err)
	}
	return ports.ClearingSubmission{
		TransactionID:  "txn-1",
		PaymentID:      "pay-1",
		ClearingSystem: "BANKSERV_EFT",
		DebitAccount:   debit,
		CreditAccount:  credit,
		Amount:         amount,
	}
}

func TestSubmitReturnsClearingReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(submitResponse{ClearingReference: "CLR-REF-1"})
	}))
	defer server.Close()

	adapter := New(server.URL, "test-clearing-submit-ok", time.Second)
	ref, err := adapter.Submit(context.Background(), testSubmission(t), "saga-1", "submit-to-clearing")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ref != "CLR-REF-1" {
		t.Fatalf("expected clearing reference CLR-REF-1, got %s", ref)
	}
}

func TestSubmitClassifiesClientErrorAsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid account"}`))
	}))
	defer server.Close()

	adapter := New(server.URL, "test-clearing-submit-4xx", time.Second)
	_, err := adapter.Submit(context.Background(), testSubmission(t), "saga-1", "submit-to-clearing")
	if err == nil {
		t.Fatal("expected an error for a 400 response")
	}
	if errs.ClassificationOf(err) != errs.ClassPermanent {
		t.Fatalf("expected Permanent classification, got %v", errs.ClassificationOf(err))
	}
}

func TestSubmitClassifiesServerErrorAsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := New(server.URL, "test-clearing-submit-5xx", time.Second)
	_, err := adapter.Submit(context.Background(), testSubmission(t), "saga-1", "submit-to-clearing")
	if err == nil {
		t.Fatal("expected an error for a 503 response")
	}
	if !errs.IsTransient(err) {
		t.Fatalf("expected Transient classification, got %v", errs.ClassificationOf(err))
	}
}
