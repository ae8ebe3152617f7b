// Coordinator server entry point. Wires the five core components
// (validation, routing, ledger, saga orchestrator, Coordinator facade)
// together with the in-memory example adapters for a runnable demo,
// generalized from the teacher's cmd/gateway/main.go (zap production
// logger, config.Load, graceful-shutdown-on-signal shape) onto a gRPC-less
// process that exposes only the /metrics and /healthz endpoints plus an
// in-process demo run.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/deltran/coordinator/adapters/memorybus"
	"github.com/deltran/coordinator/adapters/memoryrepo"
	"github.com/deltran/coordinator/adapters/sanctions"
	"github.com/deltran/coordinator/internal/api"
	"github.com/deltran/coordinator/internal/config"
	"github.com/deltran/coordinator/internal/domain"
	"github.com/deltran/coordinator/internal/observability"
	"github.com/deltran/coordinator/internal/ports"
	"github.com/deltran/coordinator/internal/resilience"
	"github.com/deltran/coordinator/internal/routing"
	"github.com/deltran/coordinator/internal/saga"
	"github.com/deltran/coordinator/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(os.Getenv("COORDINATOR_ENV"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting coordinator",
		zap.String("version", cfg.Version),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
	)

	metrics := observability.NewMetrics("deltran", "coordinator")
	metrics.ServiceHealthy.Set(1)

	bus := memorybus.New()
	bus.Subscribe(metricsSubscriber(metrics))
	sagaRepo := memoryrepo.NewSagaRepository(bus)
	ledgerRepo := memoryrepo.NewTransactionRepository(bus)
	paymentRepo := memoryrepo.NewPaymentRepository(bus)

	deps := saga.PaymentProcessingDeps{
		ValidationRules: staticValidationRules{},
		Validation:      validation.NewEngine(validation.DefaultRules()),
		RoutingRules:    staticRoutingRules{},
		Routing:         routing.NewEngine(cfg.Routing.RuleEvaluationTimeout, cfg.Routing.FallbackClearingSystem),
		Accounts:        newDemoAccounts(logger),
		Ledger:          ledgerRepo,
		Clearing:        demoClearing{},
		Settlement:      demoSettlement{},
		Notification:    demoNotification{logger: logger},
		Now:             time.Now,
	}

	retryConfig := &resilience.RetryConfig{
		MaxAttempts:  cfg.Saga.Retry.MaxAttempts,
		InitialDelay: cfg.Saga.Retry.Base,
		MaxDelay:     cfg.Saga.Retry.Cap,
		Multiplier:   cfg.Saga.Retry.Factor,
		Jitter:       true,
	}
	orchestrator := saga.NewOrchestrator(sagaRepo, retryConfig, logger)

	coordCfg := api.Config{
		MaxInFlightPerTenant: cfg.Saga.MaxInFlightPerTenant,
		AdmissionWait:        2 * time.Second,
	}
	coordinator := api.NewCoordinator(paymentRepo, sagaRepo, orchestrator, deps, coordCfg, logger, time.Now)

	recoverInFlight(orchestrator, deps, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.MetricsAddr,
		Handler:      observability.OpsMux(metrics),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", zap.String("addr", cfg.Server.MetricsAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	if os.Getenv("COORDINATOR_RUN_DEMO") == "1" {
		runDemoPayment(coordinator, logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}
	if err := ledgerRepo.Close(); err != nil {
		logger.Error("ledger event batch flush failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// metricsSubscriber records saga lifecycle events onto the published
// Metrics instruments. It is wired as a memorybus subscriber rather than
// built into the orchestrator so swapping the event bus implementation
// never requires touching the orchestrator itself.
func metricsSubscriber(metrics *observability.Metrics) func(domain.DomainEvent) {
	return func(e domain.DomainEvent) {
		switch e.EventType {
		case saga.EventSagaStarted:
			metrics.SagasStartedTotal.WithLabelValues(saga.TemplatePaymentProcessing).Inc()
		case saga.EventSagaCompleted:
			metrics.SagasCompletedTotal.WithLabelValues(saga.TemplatePaymentProcessing, "COMPLETED").Inc()
		case saga.EventSagaCompensated:
			metrics.SagasCompletedTotal.WithLabelValues(saga.TemplatePaymentProcessing, "COMPENSATED").Inc()
		case saga.EventSagaStepFailed:
			if payload, ok := e.Payload.(saga.SagaStepFailedPayload); ok {
				metrics.SagaStepRetriesTotal.WithLabelValues(saga.TemplatePaymentProcessing, payload.StepID).Inc()
			}
		}
	}
}

// recoverInFlight resumes any saga left non-terminal by a prior process
// (§4.5 crash recovery). Against a fresh in-memory repository this is
// always a no-op; it is wired here so swapping memoryrepo for a persistent
// implementation needs no changes to main.
func recoverInFlight(orchestrator *saga.Orchestrator, deps saga.PaymentProcessingDeps, logger *zap.Logger) {
	templateFor := func(name string) (saga.Template, error) {
		if name != saga.TemplatePaymentProcessing {
			return saga.Template{}, fmt.Errorf("no recovery template registered for %s", name)
		}
		return saga.NewPaymentProcessingTemplate(deps, saga.PaymentRequest{}), nil
	}
	if err := orchestrator.RecoverInFlight(context.Background(), templateFor, time.Now); err != nil {
		logger.Error("crash recovery failed", zap.Error(err))
	}
}

func runDemoPayment(coordinator *api.Coordinator, logger *zap.Logger) {
	source, _ := domain.NewAccountNumber("12345678901")
	dest, _ := domain.NewAccountNumber("98765432101")
	amount, _ := domain.NewMoney("1000.00", "ZAR")

	req := api.PaymentRequest{
		SourceAccount:      source,
		DestinationAccount: dest,
		Amount:             amount,
		Type:               domain.PaymentTypeEFT,
		Reference:          "Invoice 42",
		Tenant:             domain.TenantContext{TenantID: "T1", BusinessUnitID: "B1"},
		IdempotencyKey:     "K-1",
	}

	tracer := observability.NewTracer("coordinator")
	ctx, span := tracer.StartSpan(context.Background(), "InitiatePayment",
		attribute.String("tenant.id", req.Tenant.TenantID),
		attribute.String("payment.reference", req.Reference),
	)
	defer span.End()

	paymentID, err := coordinator.InitiatePayment(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		logger.Error("demo payment failed to initiate", zap.Error(err))
		return
	}
	logger.Info("demo payment initiated", zap.String("paymentId", paymentID.String()))
}

// staticValidationRules supplies a fixed RuleContext; a real deployment
// loads per-tenant thresholds from config or a rules store.
type staticValidationRules struct{}

func (staticValidationRules) Load(ctx context.Context, tenant domain.TenantContext) (any, error) {
	return validation.RuleContext{
		Ctx:                 ctx,
		Sanctions:           sanctions.New(nil, 3),
		Velocity:            demoVelocity{},
		SupportedCurrencies: []string{"ZAR", "USD", "EUR", "GBP"},
		MinAmount:           "0.01",
		MaxAmount:           "100000",
	}, nil
}

// demoVelocity always reports no recent activity; a real deployment
// counts against a transaction history store.
type demoVelocity struct{}

func (demoVelocity) CountRecent(ctx context.Context, account, window string) (int, error) {
	return 0, nil
}

// staticRoutingRules supplies no active rules, so every payment routes via
// the fallback clearing system configured on the routing engine.
type staticRoutingRules struct{}

func (staticRoutingRules) LoadActive(ctx context.Context, tenant domain.TenantContext, at time.Time) (any, error) {
	return []routing.RoutingRule{}, nil
}

// demoAccounts, demoClearing, demoSettlement and demoNotification are
// host-local stand-ins for the real AccountAdapter/ClearingAdapter/
// SettlementPort/NotificationPort integrations a deployment would plug in
// (adapters/httpclearing for a clearing system reachable over HTTP); they
// exist so `go run ./cmd/coordinator` with COORDINATOR_RUN_DEMO=1 produces
// a complete saga run without any external dependency. demoAccounts wraps
// its calls in a circuit breaker the way a real core-banking integration
// would need to, even though the demo body below never actually fails.
type demoAccounts struct {
	breaker *resilience.CircuitBreaker
}

func newDemoAccounts(logger *zap.Logger) demoAccounts {
	return demoAccounts{breaker: resilience.NewCircuitBreaker(resilience.DefaultConfig("core-banking", logger))}
}

func (d demoAccounts) Reserve(ctx context.Context, account domain.AccountNumber, amount domain.Money, sagaID, stepID string) error {
	return d.breaker.ExecuteContext(ctx, func(ctx context.Context) error { return nil })
}

func (d demoAccounts) Release(ctx context.Context, account domain.AccountNumber, amount domain.Money, sagaID, stepID string) error {
	return d.breaker.ExecuteContext(ctx, func(ctx context.Context) error { return nil })
}

type demoClearing struct{}

func (demoClearing) Submit(ctx context.Context, txn ports.ClearingSubmission, sagaID, stepID string) (string, error) {
	return "CLR-REF-DEMO", nil
}

func (demoClearing) Reverse(ctx context.Context, clearingReference string, sagaID, stepID string) error {
	return nil
}

type demoSettlement struct{}

func (demoSettlement) WaitFor(ctx context.Context, clearingReference string, timeout time.Duration) (ports.SettlementResult, error) {
	return ports.SettlementResult{Settled: true, Reference: clearingReference}, nil
}

func (demoSettlement) Cancel(ctx context.Context, clearingReference string) error { return nil }

type demoNotification struct {
	logger *zap.Logger
}

func (n demoNotification) Send(ctx context.Context, paymentID, event string, data map[string]any) error {
	n.logger.Info("notification", zap.String("paymentId", paymentID), zap.String("event", event))
	return nil
}
