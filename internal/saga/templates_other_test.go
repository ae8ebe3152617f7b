package saga

import (
	"context"
	"testing"
	"time"

	"github.com/deltran/coordinator/internal/domain"
)

func TestAccountUpdateTemplateCompletes(t *testing.T) {
	repo := newMemRepository()
	accounts := newFakeAccounts()
	account, err := domain.NewAccountNumber("US00000003")
	if err != nil {
		t.Fatal(err)
	}
	amount, err := domain.NewMoney("250.00", "USD")
	if err != nil {
		t.Fatal(err)
	}
	tenant := domain.TenantContext{TenantID: "tenant-1", BusinessUnitID: "bu-1"}
	template := NewAccountUpdateTemplate(accounts, fakeNotification{}, AccountUpdateRequest{Account: account, Amount: amount, Tenant: tenant})

	orch := NewOrchestrator(repo, fastRetryConfig(), nil)
	now := time.Now()
	saga, err := orch.StartSaga(context.Background(), template, tenant, "adj-1", "corr-1", now)
	if err != nil {
		t.Fatalf("StartSaga: %v", err)
	}
	if err := orch.Run(context.Background(), saga, template, func() time.Time { return now }); err != nil {
		t.Fatalf("Run: %v", err)
	}

	final, err := repo.FindByID(context.Background(), saga.SagaID.String())
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", final.Status, final.FailureReason)
	}
}

func TestBatchProcessingTemplateReservesEveryItem(t *testing.T) {
	repo := newMemRepository()
	accounts := newFakeAccounts()
	acct1, _ := domain.NewAccountNumber("US00000010")
	acct2, _ := domain.NewAccountNumber("US00000011")
	amount, _ := domain.NewMoney("10.00", "USD")
	items := []BatchItem{{Account: acct1, Amount: amount}, {Account: acct2, Amount: amount}}
	tenant := domain.TenantContext{TenantID: "tenant-1", BusinessUnitID: "bu-1"}
	template := NewBatchProcessingTemplate(accounts, fakeNotification{}, items)

	orch := NewOrchestrator(repo, fastRetryConfig(), nil)
	now := time.Now()
	saga, err := orch.StartSaga(context.Background(), template, tenant, "batch-1", "corr-1", now)
	if err != nil {
		t.Fatalf("StartSaga: %v", err)
	}
	if err := orch.Run(context.Background(), saga, template, func() time.Time { return now }); err != nil {
		t.Fatalf("Run: %v", err)
	}

	final, err := repo.FindByID(context.Background(), saga.SagaID.String())
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED for an uninterrupted batch, got %s (%s)", final.Status, final.FailureReason)
	}
}

func TestReconciliationTemplateFailsOnMissingTransaction(t *testing.T) {
	repo := newMemRepository()
	ledgerRepo := newFakeLedgerRepo()
	tenant := domain.TenantContext{TenantID: "tenant-1", BusinessUnitID: "bu-1"}

	template := NewReconciliationTemplate(ledgerRepo, ReconciliationRequest{TransactionID: "txn-missing", ExpectedClearingState: "COMPLETED"})

	orch := NewOrchestrator(repo, fastRetryConfig(), nil)
	now := time.Now()
	saga, err := orch.StartSaga(context.Background(), template, tenant, "recon-1", "corr-1", now)
	if err != nil {
		t.Fatalf("StartSaga: %v", err)
	}
	if err := orch.Run(context.Background(), saga, template, func() time.Time { return now }); err != nil {
		t.Fatalf("Run: %v", err)
	}

	final, err := repo.FindByID(context.Background(), saga.SagaID.String())
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != StatusCompensated {
		t.Fatalf("expected COMPENSATED (nothing to undo) when the transaction cannot be found, got %s", final.Status)
	}
}
