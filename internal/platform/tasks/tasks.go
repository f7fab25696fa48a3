package tasks

import (
	"errors"

	"github.com/hibiken/asynq"

	"seedscraper/internal/platform/redis"
)

const (
	TaskTypeScrape = "scrape:task"

	QueueDefault = "default"
)

// Client wraps the asynq client, cron scheduler and inspector behind one
// handle so callers enqueue, register repeating definitions and delete
// pending work through a single injected service.
type Client struct {
	c         *asynq.Client
	scheduler *asynq.Scheduler
	inspector *asynq.Inspector
}

func New(r *redis.Service) *Client {
	opt := r.AsynqRedisOpt()
	return &Client{
		c:         asynq.NewClient(opt),
		scheduler: asynq.NewScheduler(opt, nil),
		inspector: asynq.NewInspector(opt),
	}
}

// Enqueue pushes a one-shot task. taskID keeps the queue identifier equal to
// the durable job id so pending work can be deleted by the same handle.
func (t *Client) Enqueue(task *asynq.Task, queue string, maxRetries int, taskID string) error {
	opts := []asynq.Option{asynq.Queue(queue), asynq.MaxRetry(maxRetries)}
	if taskID != "" {
		opts = append(opts, asynq.TaskID(taskID))
	}
	_, err := t.c.Enqueue(task, opts...)
	return err
}

// Register adds a cron-repeating task definition and returns its entry id.
// The queue infrastructure re-fires the task on schedule; callers never
// re-derive next-run times themselves.
func (t *Client) Register(cronspec string, task *asynq.Task, queue string, maxRetries int) (string, error) {
	return t.scheduler.Register(cronspec, task, asynq.Queue(queue), asynq.MaxRetry(maxRetries))
}

// Unregister removes a repeating definition. Empty ids are a no-op so
// unschedule stays idempotent.
func (t *Client) Unregister(entryID string) error {
	if entryID == "" {
		return nil
	}
	return t.scheduler.Unregister(entryID)
}

// DeletePending removes a task that has not been dispatched yet. Returns
// false when the task is already running or gone; in-flight work cannot be
// interrupted from here.
func (t *Client) DeletePending(queue, taskID string) (bool, error) {
	err := t.inspector.DeleteTask(queue, taskID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return false, nil
	}
	return false, err
}

func (t *Client) StartScheduler() error { return t.scheduler.Start() }
func (t *Client) StopScheduler()        { t.scheduler.Shutdown() }
func (t *Client) Close() error          { return t.c.Close() }
