package task

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/webcomponents/catalog/pkg/datastore"
	"github.com/webcomponents/catalog/pkg/httpclient"
)

// Queue names. Ingestion fans out on default, the periodic sweep runs on
// update so it can refuse to start while a previous sweep is still draining,
// and analysis requests get their own lane.
const (
	QueueDefault  = "default"
	QueueUpdate   = "update"
	QueueAnalysis = "analysis"
)

// Queues lists every queue the dispatcher drains.
var Queues = []string{QueueDefault, QueueUpdate, QueueAnalysis}

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBackoff      = 5 * time.Second
	maxBackoff          = 5 * time.Minute
	maxAttempts         = 10
)

// Dispatcher drains the task outbox by replaying each task as a GET against
// the local server, stamped with the queue header so the guard admits it.
type Dispatcher struct {
	store        *datastore.Store
	baseURL      string
	client       *http.Client
	concurrency  int
	pollInterval time.Duration
	backoff      time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithConcurrency sets the number of workers per queue.
func WithConcurrency(workers int) DispatcherOption {
	return func(d *Dispatcher) {
		d.concurrency = workers
	}
}

// WithPollInterval sets how often idle workers re-check their queue.
func WithPollInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.pollInterval = interval
	}
}

// WithBackoff sets the base retry backoff.
func WithBackoff(backoff time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.backoff = backoff
	}
}

// WithClient overrides the HTTP client used to call the task endpoints.
func WithClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) {
		d.client = client
	}
}

// NewDispatcher creates a dispatcher targeting the server at baseURL.
func NewDispatcher(store *datastore.Store, baseURL string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:        store,
		baseURL:      baseURL,
		concurrency:  4,
		pollInterval: defaultPollInterval,
		backoff:      defaultBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = httpclient.Get(httpclient.WithTimeout(10 * time.Minute))
	}
	return d
}

// Run drains all queues until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, queue := range Queues {
		for i := 0; i < d.concurrency; i++ {
			wg.Add(1)
			go func(queue string) {
				defer wg.Done()
				d.worker(ctx, queue)
			}(queue)
		}
	}
	wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, queue string) {
	for {
		task, err := d.store.ClaimTask(ctx, queue)
		if err != nil {
			log.WithError(err).WithField("queue", queue).Error("failed to claim task")
		}
		if task == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.pollInterval):
			}
			continue
		}
		d.deliver(ctx, task)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// deliver replays one task. A 2xx completes it, anything else reschedules
// with linear backoff until the attempt budget runs out.
func (d *Dispatcher) deliver(ctx context.Context, task *datastore.Task) {
	entry := log.WithFields(log.Fields{"queue": task.Queue, "url": task.URL, "attempt": task.Attempts})

	status, err := d.call(ctx, task)
	if err == nil && status < 300 {
		entry.Debug("task complete")
		if err := d.store.CompleteTask(ctx, task.ID); err != nil {
			entry.WithError(err).Error("failed to complete task")
		}
		return
	}
	if err != nil {
		entry = entry.WithError(err)
	} else {
		entry = entry.WithField("status", status)
	}

	if task.Attempts >= maxAttempts {
		entry.Error("task failed permanently")
		if err := d.store.FailTask(ctx, task.ID); err != nil {
			entry.WithError(err).Error("failed to mark task failed")
		}
		return
	}

	backoff := time.Duration(task.Attempts) * d.backoff
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	entry.WithField("backoff", backoff).Warn("task will be retried")
	if err := d.store.RetryTask(ctx, task.ID, backoff); err != nil {
		entry.WithError(err).Error("failed to reschedule task")
	}
}

func (d *Dispatcher) call(ctx context.Context, task *datastore.Task) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+task.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request for %s: %w", task.URL, err)
	}
	req.Header.Set(QueueHeader, task.Queue)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
