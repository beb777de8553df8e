// Package audit publishes the AdminLog events the engine produces for every
// admitted or denied wallet call and every transaction transition.
package audit

import (
	"context"
	"errors"
	"time"

	"pontos/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Actions
const (
	ActionDeposit         = "wallet.deposit"
	ActionWithdraw        = "wallet.withdraw"
	ActionMerchantPayment = "wallet.merchant_payment"
	ActionTransfer        = "wallet.transfer"
	ActionCashback        = "wallet.cashback"
	ActionFee             = "wallet.fee"
	ActionTransition      = "transaction.transition"
	ActionLedgerMismatch  = "ledger.mismatch"
)

// Event is one AdminLog record.
type Event struct {
	ID            string                 `json:"id"`
	ResponsibleID string                 `json:"responsibleId"`
	TargetUserID  string                 `json:"targetUserId"`
	Action        string                 `json:"action"`
	Details       map[string]interface{} `json:"details,omitempty"`
	OccurredAt    time.Time              `json:"occurredAt"`
}

// Emitter delivers audit events to a sink.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Multi fans an event out to every emitter and joins their errors.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Noop struct{}

func (Noop) Emit(context.Context, Event) error { return nil }

// Recorder wraps an emitter so that failures are logged and never returned
// to the wallet operation that produced the event.
type Recorder struct {
	emitter Emitter
	log     *zap.Logger
	now     func() time.Time
}

func NewRecorder(emitter Emitter, log *zap.Logger) *Recorder {
	if emitter == nil {
		emitter = Noop{}
	}
	return &Recorder{
		emitter: emitter,
		log:     logger.OrNop(log).Named("audit"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record fills ID and OccurredAt when missing and emits the event.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now()
	}
	if err := r.emitter.Emit(ctx, event); err != nil {
		r.log.Warn("failed to emit audit event",
			zap.String("action", event.Action),
			zap.String("target_user_id", event.TargetUserID),
			zap.Error(err))
	}
}
