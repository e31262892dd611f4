// Package worker dispatches generation jobs over NATS.
//
// NatsEnqueuer publishes a JobQueuedEvent for every queued job and NatsWorker
// consumes them in a queue group, so each event is handled by one worker.
// The job store stays the source of truth: an event only names the job.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/podcast-service/internal/core"
)

const (
	defaultQueueGroup    = "podcast-workers"
	defaultScriptTimeout = 10 * time.Minute
	defaultAudioTimeout  = 60 * time.Minute
	defaultConcurrency   = 1
)

var (
	// ErrInvalidEvent indicates a message that is not a usable JobQueuedEvent.
	ErrInvalidEvent = errors.New("invalid job event")
	// ErrSubjectEmpty indicates a worker or enqueuer built without a subject.
	ErrSubjectEmpty = errors.New("subject cannot be empty")
)

// JobQueuedEvent announces that a job is ready to run.
type JobQueuedEvent struct {
	Header     events.EventHeader `json:"header"`
	JobID      string             `json:"job_id"`
	ArtifactID string             `json:"artifact_id"`
	Kind       core.JobKind       `json:"kind"`
}

// JobProcessedEvent is the reply sent when a JobQueuedEvent was a request.
type JobProcessedEvent struct {
	Header       events.EventHeader `json:"header"`
	JobID        string             `json:"job_id"`
	Kind         core.JobKind       `json:"kind"`
	State        core.JobState      `json:"state"`
	ErrorMessage string             `json:"error_message,omitempty"`
}

// JobExecutor runs a job to a terminal state.
type JobExecutor interface {
	Run(ctx context.Context, jobID string) error
}

// JobLookup reads a job's current record.
type JobLookup interface {
	GetJob(ctx context.Context, id string) (*core.Job, error)
}

// Options tune a NatsWorker. Zero values select defaults.
type Options struct {
	Timeouts map[core.JobKind]time.Duration
	// Ready, when set, is called once every subscription is active.
	Ready       func()
	QueueGroup  string
	Concurrency int
}

// NatsWorker listens for job events on a NATS subject and runs them.
type NatsWorker struct {
	natsConnection *nats.Conn
	executor       JobExecutor
	jobs           JobLookup
	log            *logger.Logger
	timeouts       map[core.JobKind]time.Duration
	ready          func()
	subject        string
	queueGroup     string
	concurrency    int
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	executor JobExecutor,
	jobs JobLookup,
	log *logger.Logger,
	opts Options,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	timeouts := map[core.JobKind]time.Duration{
		core.JobKindScript: defaultScriptTimeout,
		core.JobKindAudio:  defaultAudioTimeout,
	}

	for kind, timeout := range opts.Timeouts {
		if timeout > 0 {
			timeouts[kind] = timeout
		}
	}

	queueGroup := opts.QueueGroup
	if queueGroup == "" {
		queueGroup = defaultQueueGroup
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		executor:       executor,
		jobs:           jobs,
		log:            log,
		timeouts:       timeouts,
		ready:          opts.Ready,
		subject:        subject,
		queueGroup:     queueGroup,
		concurrency:    concurrency,
	}, nil
}

// Run subscribes and processes events until ctx is cancelled, then drains.
// Each subscription handles one event at a time, so concurrency bounds the
// number of jobs this worker runs at once.
func (w *NatsWorker) Run(ctx context.Context) error {
	subscriptions := make([]*nats.Subscription, 0, w.concurrency)

	for range w.concurrency {
		sub, err := w.natsConnection.QueueSubscribe(w.subject, w.queueGroup, w.handleMessage)
		if err != nil {
			drainAll(subscriptions)

			return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
		}

		subscriptions = append(subscriptions, sub)
	}

	w.log.Info("Worker listening on '%s' (queue '%s', %d slots)", w.subject, w.queueGroup, w.concurrency)

	if w.ready != nil {
		w.ready()
	}

	<-ctx.Done()

	return drainAll(subscriptions)
}

func drainAll(subscriptions []*nats.Subscription) error {
	var errs []error

	for _, sub := range subscriptions {
		drainErr := sub.Drain()
		if drainErr != nil {
			errs = append(errs, fmt.Errorf("failed to drain subscription: %w", drainErr))
		}
	}

	return errors.Join(errs...)
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	event, err := parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)
		w.reply(msg, &JobProcessedEvent{
			Header:       newHeader(""),
			JobID:        "",
			Kind:         "",
			State:        "",
			ErrorMessage: err.Error(),
		})

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeoutFor(event.Kind))
	defer cancel()

	runErr := w.executor.Run(ctx, event.JobID)
	if runErr != nil {
		w.log.Error("Job %s from workflow %s failed: %v", event.JobID, event.Header.WorkflowID, runErr)
	}

	reply := &JobProcessedEvent{
		Header:       event.Header,
		JobID:        event.JobID,
		Kind:         event.Kind,
		State:        "",
		ErrorMessage: "",
	}

	job, err := w.jobs.GetJob(context.WithoutCancel(ctx), event.JobID)
	if err != nil {
		reply.ErrorMessage = err.Error()
	} else {
		reply.Kind = job.Kind
		reply.State = job.State
		reply.ErrorMessage = job.ErrorMessage
	}

	if runErr != nil && reply.ErrorMessage == "" {
		reply.ErrorMessage = runErr.Error()
	}

	w.reply(msg, reply)
}

func (w *NatsWorker) timeoutFor(kind core.JobKind) time.Duration {
	timeout, ok := w.timeouts[kind]
	if !ok {
		return defaultAudioTimeout
	}

	return timeout
}

// reply responds when the event was sent as a request.
func (w *NatsWorker) reply(msg *nats.Msg, replyEvent *JobProcessedEvent) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		w.log.Error("Failed to marshal reply event: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply event for job %s: %v", replyEvent.JobID, err)
	}
}

func parseAndValidateEvent(msg *nats.Msg) (*JobQueuedEvent, error) {
	var event JobQueuedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	if event.JobID == "" {
		return nil, fmt.Errorf("%w: job id is empty", ErrInvalidEvent)
	}

	return &event, nil
}

func newHeader(workflowID string) events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: workflowID,
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}
}
