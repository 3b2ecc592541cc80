package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/dawaly/dawaly/internal/jobs"
	"github.com/dawaly/dawaly/internal/revenue"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RevenueWarmupJob pre-populates the revenue caches so dashboard reads after
// an invalidation do not pay the aggregation cost. Referral expiry stays a
// read-time concern; this job never rewrites ledger rows.
type RevenueWarmupJob struct {
	Revenue *revenue.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewRevenueWarmupJob wires dependencies for the warmup handler.
func NewRevenueWarmupJob(revenueSvc *revenue.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *RevenueWarmupJob {
	return &RevenueWarmupJob{
		Revenue: revenueSvc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes revenue warmup tasks.
func (j *RevenueWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Revenue == nil {
		return errors.New("revenue warmup: handler not configured")
	}
	var payload RevenueWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	timeframes, err := j.resolveTimeframes(payload)
	if err != nil {
		j.logger().Error("resolve timeframes", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskRevenueWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	logger := j.logger()
	logger.Info("starting revenue warmup", slog.Int("timeframes", len(timeframes)))

	for _, tf := range timeframes {
		if err := j.warmTimeframe(ctx, tf); err != nil {
			resultErr = err
			logger.Error("warm timeframe", slog.String("timeframe", string(tf)), slog.Any("error", err))
			return resultErr
		}
	}

	logger.Info("completed revenue warmup", slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *RevenueWarmupJob) warmTimeframe(ctx context.Context, tf revenue.Timeframe) error {
	tfCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := j.Revenue.Summary(tfCtx, tf); err != nil {
		return err
	}
	_, err := j.Revenue.TopPerformers(tfCtx, tf)
	return err
}

func (j *RevenueWarmupJob) resolveTimeframes(payload RevenueWarmupPayload) ([]revenue.Timeframe, error) {
	if len(payload.Timeframes) == 0 {
		return revenue.Timeframes, nil
	}
	out := make([]revenue.Timeframe, 0, len(payload.Timeframes))
	for _, raw := range payload.Timeframes {
		tf, err := revenue.ParseTimeframe(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, nil
}

func (j *RevenueWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRevenueWarmup))
	}
	return slog.Default().With(slog.String("job", TaskRevenueWarmup))
}

func (j *RevenueWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RevenueWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
