package domain

import (
	"testing"
	"time"
)

func testPayment(t *testing.T) *Payment {
	t.Helper()
	id, err := NewPaymentId("pay-1")
	if err != nil {
		t.Fatal(err)
	}
	source, err := NewAccountNumber("12345678901")
	if err != nil {
		t.Fatal(err)
	}
	dest, err := NewAccountNumber("98765432101")
	if err != nil {
		t.Fatal(err)
	}
	amount, err := NewMoney("1000.00", "ZAR")
	if err != nil {
		t.Fatal(err)
	}
	tenant := TenantContext{TenantID: "T1", BusinessUnitID: "B1"}
	p, err := NewPayment(id, tenant, source, dest, amount, "invoice-42", PaymentTypeEFT, 5, "api", "K-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNewPaymentRejectsNonPositiveAmount(t *testing.T) {
	id, _ := NewPaymentId("pay-1")
	source, _ := NewAccountNumber("12345678901")
	dest, _ := NewAccountNumber("98765432101")
	zero, _ := NewMoney("0.00", "ZAR")
	tenant := TenantContext{TenantID: "T1", BusinessUnitID: "B1"}
	if _, err := NewPayment(id, tenant, source, dest, zero, "r", PaymentTypeEFT, 0, "api", "K-1", time.Now()); err == nil {
		t.Fatal("expected an error for a non-positive amount")
	}
}

func TestNewPaymentRejectsSameSourceAndDestination(t *testing.T) {
	id, _ := NewPaymentId("pay-1")
	account, _ := NewAccountNumber("12345678901")
	amount, _ := NewMoney("10.00", "ZAR")
	tenant := TenantContext{TenantID: "T1", BusinessUnitID: "B1"}
	if _, err := NewPayment(id, tenant, account, account, amount, "r", PaymentTypeEFT, 0, "api", "K-1", time.Now()); err == nil {
		t.Fatal("expected an error when source equals destination")
	}
}

func TestNewPaymentEmitsPaymentInitiated(t *testing.T) {
	p := testPayment(t)
	events := p.DrainEvents()
	if len(events) != 1 || events[0].EventType != "PaymentInitiated" {
		t.Fatalf("expected a single PaymentInitiated event, got %v", events)
	}
	if p.Status != PaymentInitiated {
		t.Fatalf("expected status INITIATED, got %s", p.Status)
	}
}

func TestPaymentHappyPathTransitionsToCompleted(t *testing.T) {
	p := testPayment(t)
	now := time.Now()
	if err := p.MarkValidated(now); err != nil {
		t.Fatalf("MarkValidated: %v", err)
	}
	if err := p.MarkClearing(now); err != nil {
		t.Fatalf("MarkClearing: %v", err)
	}
	if err := p.MarkCompleted(now); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if p.Status != PaymentCompleted {
		t.Fatalf("expected COMPLETED, got %s", p.Status)
	}
	if !p.Status.IsTerminal() {
		t.Fatal("expected COMPLETED to be terminal")
	}
}

func TestPaymentHeldFromValidatedCanStillClear(t *testing.T) {
	p := testPayment(t)
	now := time.Now()
	if err := p.MarkValidated(now); err != nil {
		t.Fatalf("MarkValidated: %v", err)
	}
	if err := p.MarkHeld("manual review required", now); err != nil {
		t.Fatalf("MarkHeld: %v", err)
	}
	if p.Status != PaymentHeld {
		t.Fatalf("expected HELD, got %s", p.Status)
	}
	if p.StatusReason != "manual review required" {
		t.Fatalf("expected StatusReason set, got %q", p.StatusReason)
	}
	if p.Status.IsTerminal() {
		t.Fatal("HELD must not be terminal: a held payment can still clear or fail")
	}
	if err := p.MarkClearing(now); err != nil {
		t.Fatalf("expected HELD -> CLEARING to be legal, got %v", err)
	}
}

func TestPaymentMarkFailedFromInitiated(t *testing.T) {
	p := testPayment(t)
	now := time.Now()
	if err := p.MarkFailed("amount limit exceeded", now); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if p.Status != PaymentFailed {
		t.Fatalf("expected FAILED, got %s", p.Status)
	}
	if p.StatusReason != "amount limit exceeded" {
		t.Fatalf("expected StatusReason set, got %q", p.StatusReason)
	}
}

func TestPaymentRejectsTransitionOutOfTerminalStatus(t *testing.T) {
	p := testPayment(t)
	now := time.Now()
	if err := p.MarkFailed("rejected", now); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := p.MarkValidated(now); err == nil {
		t.Fatal("expected an error transitioning out of a terminal FAILED status")
	}
}

func TestPaymentRejectsIllegalTransition(t *testing.T) {
	p := testPayment(t)
	now := time.Now()
	if err := p.MarkCompleted(now); err == nil {
		t.Fatal("expected an error completing a payment that was never validated or cleared")
	}
}
