package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dradenvandewind/registration-api/internal/core/activation"
	"github.com/dradenvandewind/registration-api/internal/core/user"
)

func init() {
	register(
		registrationsTotal,
		codesIssuedTotal,
		deliveriesTotal,
		activationsTotal,
	)
}

var (
	registrationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "registrations_total",
			Help: "Total number of users registered.",
		},
	)

	codesIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "activation_codes_issued_total",
			Help: "Total number of activation codes issued.",
		},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activation_code_deliveries_total",
			Help: "Activation code delivery attempts by result.",
		},
		[]string{"result"}, // delivered, failed
	)

	activationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activations_total",
			Help: "Account activation attempts by result.",
		},
		[]string{"result"},
	)
)

// Observer は registration.Observer を満たし、登録フローをメトリクスに記録します。
type Observer struct{}

func (Observer) Registered() { registrationsTotal.Inc() }

func (Observer) CodeIssued() { codesIssuedTotal.Inc() }

func (Observer) Delivered(ok bool) {
	if ok {
		IncDelivery("delivered")
		return
	}
	IncDelivery("failed")
}

// IncDelivery は配送結果を記録します。
func IncDelivery(result string) {
	deliveriesTotal.WithLabelValues(result).Inc()
}

// ObserveActivation は有効化の結果をエラー種別ごとに記録します。
func ObserveActivation(err error) {
	activationsTotal.WithLabelValues(activationResult(err)).Inc()
}

func activationResult(err error) string {
	switch {
	case err == nil:
		return "activated"
	case errors.Is(err, user.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, activation.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, activation.ErrCodeExpired):
		return "expired"
	case errors.Is(err, activation.ErrCodeAlreadyUsed):
		return "already_used"
	case errors.Is(err, user.ErrAlreadyActive):
		return "already_active"
	default:
		return "error"
	}
}

// InstrumentedActivation は activation.UseCase を包み、有効化の結果を記録します。
type InstrumentedActivation struct {
	Next activation.UseCase
}

func (i InstrumentedActivation) IssueActivation(ctx context.Context, userID string) (*activation.Code, error) {
	return i.Next.IssueActivation(ctx, userID)
}

func (i InstrumentedActivation) ActivateAccount(ctx context.Context, in activation.ActivateAccountInput) (*user.User, error) {
	u, err := i.Next.ActivateAccount(ctx, in)
	ObserveActivation(err)
	return u, err
}

func (i InstrumentedActivation) Status(ctx context.Context, in activation.StatusInput) (*activation.Status, error) {
	return i.Next.Status(ctx, in)
}
