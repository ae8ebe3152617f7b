// Package httpclearing is an example ClearingAdapter/SettlementPort backed
// by plain HTTP, reusing the teacher's clients.BaseClient circuit-breaker
// pattern (services/gateway/internal/clients/client_base.go: hystrix.Do
// wrapping a timeout-bounded http.Client, a fixed MaxIdleConnsPerHost pool).
// Concrete clearing-system integrations are a Non-goal; this adapter is
// exercised by its own tests against an httptest server, not a real
// clearing network, and the demo binary uses host-local stand-ins instead.
package httpclearing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/afex/hystrix-go/hystrix"

	"github.com/deltran/coordinator/internal/errs"
	"github.com/deltran/coordinator/internal/ports"
)

// Adapter is an HTTP-backed ClearingAdapter and SettlementPort, protected by
// a per-clearing-system circuit breaker.
type Adapter struct {
	httpClient  *http.Client
	baseURL     string
	serviceName string
}

// New builds an Adapter targeting baseURL, registering serviceName as a
// hystrix command so repeated failures trip its own circuit independent of
// any other clearing system the process talks to.
func New(baseURL, serviceName string, timeout time.Duration) *Adapter {
	hystrix.ConfigureCommand(serviceName, hystrix.CommandConfig{
		Timeout:                int(timeout.Milliseconds()),
		MaxConcurrentRequests:  100,
		RequestVolumeThreshold: 10,
		SleepWindow:            5000,
		ErrorPercentThreshold:  50,
	})

	return &Adapter{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:     baseURL,
		serviceName: serviceName,
	}
}

type submitRequest struct {
	TransactionID  string `json:"transactionId"`
	PaymentID      string `json:"paymentId"`
	ClearingSystem string `json:"clearingSystem"`
	DebitAccount   string `json:"debitAccount"`
	CreditAccount  string `json:"creditAccount"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	SagaID         string `json:"sagaId"`
	StepID         string `json:"stepId"`
}

type submitResponse struct {
	ClearingReference string `json:"clearingReference"`
}

// Submit posts txn to the clearing system's /submissions endpoint. A 4xx
// response classifies Permanent (the submission itself is bad and retrying
// won't help); anything else — network failure, 5xx, or an open circuit —
// classifies Transient (§7).
func (a *Adapter) Submit(ctx context.Context, txn ports.ClearingSubmission, sagaID, stepID string) (string, error) {
	body := submitRequest{
		TransactionID:  txn.TransactionID,
		PaymentID:      txn.PaymentID,
		ClearingSystem: txn.ClearingSystem,
		DebitAccount:   txn.DebitAccount.String(),
		CreditAccount:  txn.CreditAccount.String(),
		Amount:         txn.Amount.Amount.String(),
		Currency:       txn.Amount.Currency,
		SagaID:         sagaID,
		StepID:         stepID,
	}

	var resp submitResponse
	if err := a.post(ctx, "/submissions", body, &resp); err != nil {
		return "", err
	}
	return resp.ClearingReference, nil
}

// Reverse posts a reversal for a prior submission. Idempotent on
// (sagaId, stepId) per the ClearingAdapter contract: the clearing system is
// expected to no-op a repeated reversal for the same pair.
func (a *Adapter) Reverse(ctx context.Context, clearingReference string, sagaID, stepID string) error {
	body := map[string]string{"clearingReference": clearingReference, "sagaId": sagaID, "stepId": stepID}
	return a.post(ctx, "/reversals", body, nil)
}

type waitForResponse struct {
	Settled bool   `json:"settled"`
	Reason  string `json:"reason"`
}

// WaitFor polls the clearing system's /settlements/{ref} endpoint once;
// long-poll/webhook settlement notification is left to a real integration.
func (a *Adapter) WaitFor(ctx context.Context, clearingReference string, timeout time.Duration) (ports.SettlementResult, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp waitForResponse
	if err := a.get(waitCtx, "/settlements/"+clearingReference, &resp); err != nil {
		return ports.SettlementResult{}, err
	}
	return ports.SettlementResult{Settled: resp.Settled, Reference: clearingReference, Reason: resp.Reason}, nil
}

// Cancel tells the clearing system to stop waiting for settlement of
// clearingReference.
func (a *Adapter) Cancel(ctx context.Context, clearingReference string) error {
	return a.post(ctx, "/settlements/"+clearingReference+"/cancel", nil, nil)
}

func (a *Adapter) post(ctx context.Context, endpoint string, body, result any) error {
	var data []byte
	var status int

	err := hystrix.Do(a.serviceName, func() error {
		d, code, err := a.do(ctx, http.MethodPost, endpoint, body)
		data, status = d, code
		return err
	}, nil)
	if err != nil {
		return errs.Transient(fmt.Errorf("%s: %w", a.serviceName, err))
	}
	return decodeResponse(status, data, result)
}

func (a *Adapter) get(ctx context.Context, endpoint string, result any) error {
	var data []byte
	var status int

	err := hystrix.Do(a.serviceName, func() error {
		d, code, err := a.do(ctx, http.MethodGet, endpoint, nil)
		data, status = d, code
		return err
	}, nil)
	if err != nil {
		return errs.Transient(fmt.Errorf("%s: %w", a.serviceName, err))
	}
	return decodeResponse(status, data, result)
}

func (a *Adapter) do(ctx context.Context, method, endpoint string, body any) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

func decodeResponse(status int, data []byte, result any) error {
	if status >= 400 && status < 500 {
		return errs.Permanent(fmt.Errorf("clearing rejected request with status %d: %s", status, string(data)))
	}
	if status >= 500 {
		return errs.Transient(fmt.Errorf("clearing returned status %d: %s", status, string(data)))
	}
	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
