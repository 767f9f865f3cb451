package camunda

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// TaskHandler runs one external task. It returns output variables for
// Complete; a returned *BpmnError routes to the process error boundary; any
// other error is reported as a technical failure with zero retries.
type TaskHandler func(ctx context.Context, task Task) (map[string]interface{}, error)

// WorkerConfig bounds the fetch-and-lock polling loop.
type WorkerConfig struct {
	MaxTasks             int
	LockDuration         time.Duration
	AsyncResponseTimeout time.Duration
	ErrorBackoff         time.Duration
}

func (c *WorkerConfig) defaults() {
	if c.MaxTasks == 0 {
		c.MaxTasks = 10
	}
	if c.LockDuration == 0 {
		c.LockDuration = 30 * time.Second
	}
	if c.AsyncResponseTimeout == 0 {
		c.AsyncResponseTimeout = 30 * time.Second
	}
	if c.ErrorBackoff == 0 {
		c.ErrorBackoff = 5 * time.Second
	}
}

// Worker polls the engine for external tasks and dispatches them to
// registered handlers.
type Worker struct {
	client   *Client
	config   WorkerConfig
	handlers map[string]TaskHandler
	logger   *slog.Logger
}

// NewWorker creates a worker around an engine client.
func NewWorker(client *Client, config WorkerConfig) *Worker {
	config.defaults()
	return &Worker{
		client:   client,
		config:   config,
		handlers: make(map[string]TaskHandler),
		logger:   slog.Default().With("component", "camunda_worker"),
	}
}

// Subscribe registers a handler for a topic. Must be called before Run.
func (w *Worker) Subscribe(topic string, handler TaskHandler) {
	w.handlers[topic] = handler
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	topics := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		topics = append(topics, t)
	}
	w.logger.Info("worker started", "topics", topics)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		tasks, err := w.client.FetchAndLock(ctx, topics, w.config.MaxTasks, w.config.LockDuration, w.config.AsyncResponseTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("fetch and lock failed", "error", err)
			select {
			case <-time.After(w.config.ErrorBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, task := range tasks {
			w.execute(ctx, task)
		}
	}
}

func (w *Worker) execute(ctx context.Context, task Task) {
	handler, ok := w.handlers[task.TopicName]
	if !ok {
		w.logger.Error("no handler for locked task", "topic", task.TopicName, "task_id", task.ID)
		return
	}

	logger := w.logger.With("topic", task.TopicName, "task_id", task.ID, "process_instance_id", task.ProcessInstanceID)
	out, err := handler(ctx, task)
	if err != nil {
		var berr *BpmnError
		if errors.As(err, &berr) {
			logger.Info("task raised business error", "code", berr.Code, "message", berr.Message)
			if rerr := w.client.ReportBpmnError(ctx, task.ID, berr); rerr != nil {
				logger.Error("report bpmn error failed", "error", rerr)
			}
			return
		}
		logger.Error("task failed", "error", err)
		if rerr := w.client.ReportFailure(ctx, task.ID, err.Error()); rerr != nil {
			logger.Error("report failure failed", "error", rerr)
		}
		return
	}

	if cerr := w.client.Complete(ctx, task.ID, Encode(out)); cerr != nil {
		logger.Error("complete task failed", "error", cerr)
		return
	}
	logger.Info("task completed")
}
