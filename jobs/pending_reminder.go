package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/guichet-civil/guichet/internal/jobs"
)

// TaskTypePendingReminder is the task type for the stale-request reminder.
const TaskTypePendingReminder = "requests:pending_reminder"

// PendingReminderPayload configures one reminder sweep.
type PendingReminderPayload struct {
	OlderThanHours int    `json:"older_than_hours"`
	StaffInbox     string `json:"staff_inbox"`
}

// NewPendingReminderTask constructs an Asynq task.
func NewPendingReminderTask(olderThan time.Duration, staffInbox string) (*asynq.Task, error) {
	data, err := json.Marshal(PendingReminderPayload{
		OlderThanHours: int(olderThan.Hours()),
		StaffInbox:     staffInbox,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePendingReminder, data), nil
}

// PendingReminderJob flags requests that have sat in pending for too long and
// mails a digest to the staff inbox.
type PendingReminderJob struct {
	Pool    *pgxpool.Pool
	Enqueue func(ctx context.Context, payload SendEmailPayload) error
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPendingReminderJob initialises the reminder handler. enqueue submits the
// digest email back onto the mail queue.
func NewPendingReminderJob(pool *pgxpool.Pool, enqueue func(ctx context.Context, payload SendEmailPayload) error, logger *slog.Logger, metrics *jobmetrics.Metrics) *PendingReminderJob {
	return &PendingReminderJob{
		Pool:    pool,
		Enqueue: enqueue,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type staleRequest struct {
	ID             string
	PersonFullname string
	CreatedAt      time.Time
}

// Handle executes one reminder sweep.
func (j *PendingReminderJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Pool == nil {
		return errors.New("pending reminder: handler not configured")
	}
	var payload PendingReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OlderThanHours <= 0 {
		payload.OlderThanHours = 72
	}
	if payload.StaffInbox == "" {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTypePendingReminder)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().Add(-time.Duration(payload.OlderThanHours) * time.Hour)
	logger := j.logger().With(slog.Time("cutoff", cutoff))
	logger.Info("starting pending sweep")

	stale, err := j.scan(ctx, cutoff)
	if err != nil {
		resultErr = err
		logger.Error("sweep failed", slog.Any("error", err))
		return resultErr
	}
	if len(stale) == 0 {
		logger.Info("no stale requests")
		return nil
	}

	if j.Enqueue != nil {
		if err := j.Enqueue(ctx, SendEmailPayload{
			To:      payload.StaffInbox,
			Subject: fmt.Sprintf("[Guichet] %d demande(s) en attente depuis plus de %dh", len(stale), payload.OlderThanHours),
			Body:    digestBody(stale),
		}); err != nil {
			resultErr = err
			logger.Error("enqueue digest", slog.Any("error", err))
			return resultErr
		}
	}

	logger.Info("completed pending sweep", slog.Int("stale", len(stale)))
	return nil
}

func (j *PendingReminderJob) scan(ctx context.Context, cutoff time.Time) ([]staleRequest, error) {
	rows, err := j.Pool.Query(ctx,
		`SELECT id, person_fullname, created_at FROM requests
		 WHERE status = 'pending' AND created_at < $1
		 ORDER BY created_at`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []staleRequest
	for rows.Next() {
		var s staleRequest
		if err := rows.Scan(&s.ID, &s.PersonFullname, &s.CreatedAt); err != nil {
			return nil, err
		}
		stale = append(stale, s)
	}
	return stale, rows.Err()
}

func digestBody(stale []staleRequest) string {
	var b strings.Builder
	b.WriteString("Bonjour,\n\nLes demandes suivantes attendent un premier traitement :\n\n")
	for _, s := range stale {
		fmt.Fprintf(&b, "- %s (%s), déposée le %s\n",
			shortID(s.ID), s.PersonFullname, s.CreatedAt.Format("02/01/2006"))
	}
	b.WriteString("\nMerci de les prendre en charge.\n")
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}

func (j *PendingReminderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypePendingReminder))
	}
	return slog.Default().With(slog.String("job", TaskTypePendingReminder))
}

func (j *PendingReminderJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *PendingReminderJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
