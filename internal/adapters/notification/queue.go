package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dradenvandewind/registration-api/internal/core/registration"
)

// 配送結果のラベルです。
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
	ResultExpired   = "expired"
	ResultInvalid   = "invalid"
)

type envelope struct {
	ID         string    `json:"id"`
	Address    string    `json:"address"`
	Code       string    `json:"code"`
	ExpiresAt  time.Time `json:"expires_at"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// QueueSender は配送要求を Redis のリストに積む Notifier です。
// 実際の配送は Dispatcher が非同期に行います。
type QueueSender struct {
	client goredis.Cmdable
	key    string
	now    func() time.Time
}

// NewQueueSender は QueueSender を生成します。
func NewQueueSender(client goredis.Cmdable, key string) *QueueSender {
	return &QueueSender{client: client, key: key, now: time.Now}
}

// Send は配送要求をキューに追加します。
func (q *QueueSender) Send(ctx context.Context, n registration.Notification) error {
	now := q.now().UTC()
	payload, err := json.Marshal(envelope{
		ID:         ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Address:    n.Address,
		Code:       n.Code,
		ExpiresAt:  n.ExpiresAt,
		EnqueuedAt: now,
	})
	if err != nil {
		return fmt.Errorf("%w: encode envelope: %w", registration.ErrDeliveryFailed, err)
	}

	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("%w: enqueue: %w", registration.ErrDeliveryFailed, err)
	}
	return nil
}

// Dispatcher はキューから配送要求を取り出し、sender で一度だけ配送します。
// 有効期限を過ぎたコードは配送せずに破棄します。
type Dispatcher struct {
	client   goredis.Cmdable
	key      string
	sender   registration.Notifier
	block    time.Duration
	backoff  time.Duration
	logger   *zap.Logger
	now      func() time.Time
	observer func(result string)
}

// DispatcherOption は Dispatcher の任意設定です。
type DispatcherOption func(*Dispatcher)

// WithResultObserver は配送結果ごとに呼ばれる関数を設定します。
func WithResultObserver(fn func(result string)) DispatcherOption {
	return func(d *Dispatcher) { d.observer = fn }
}

// WithClock は現在時刻の取得関数を差し替えます。
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher は Dispatcher を生成します。
func NewDispatcher(client goredis.Cmdable, key string, sender registration.Notifier, block time.Duration, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		client:   client,
		key:      key,
		sender:   sender,
		block:    block,
		backoff:  time.Second,
		logger:   logger,
		now:      time.Now,
		observer: func(string) {},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run は ctx がキャンセルされるまでキューを処理します。
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("notification dispatcher started", zap.String("queue", d.key))
	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := d.client.BRPop(ctx, d.block, d.key).Result()
		switch {
		case errors.Is(err, goredis.Nil):
			continue
		case ctx.Err() != nil:
			return nil
		case err != nil:
			d.logger.Warn("notification queue unavailable", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(d.backoff):
			}
			continue
		}

		// BRPOP は [key, value] を返します。
		if len(res) == 2 {
			d.handle(ctx, res[1])
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, payload string) string {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		d.logger.Error("discarding malformed notification", zap.Error(err))
		d.observer(ResultInvalid)
		return ResultInvalid
	}

	if !env.ExpiresAt.After(d.now()) {
		d.logger.Info("discarding expired notification", zap.String("message_id", env.ID))
		d.observer(ResultExpired)
		return ResultExpired
	}

	err := d.sender.Send(ctx, registration.Notification{
		Address:   env.Address,
		Code:      env.Code,
		ExpiresAt: env.ExpiresAt,
	})
	if err != nil {
		d.logger.Warn("activation code delivery failed",
			zap.String("message_id", env.ID),
			zap.Error(err),
		)
		d.observer(ResultFailed)
		return ResultFailed
	}

	d.observer(ResultDelivered)
	return ResultDelivered
}
