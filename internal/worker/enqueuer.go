package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/book-expert/podcast-service/internal/core"
)

const flushTimeout = 5 * time.Second

// NatsEnqueuer publishes JobQueuedEvents for the worker pool.
type NatsEnqueuer struct {
	natsConnection *nats.Conn
	subject        string
}

// NewNatsEnqueuer creates an enqueuer publishing on subject.
func NewNatsEnqueuer(natsConnection *nats.Conn, subject string) (*NatsEnqueuer, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	return &NatsEnqueuer{natsConnection: natsConnection, subject: subject}, nil
}

// Enqueue announces job. The artifact id doubles as the workflow id so all
// events for one episode correlate.
func (e *NatsEnqueuer) Enqueue(ctx context.Context, job *core.Job) error {
	event := &JobQueuedEvent{
		Header:     newHeader(job.ArtifactID),
		JobID:      job.ID,
		ArtifactID: job.ArtifactID,
		Kind:       job.Kind,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	err = e.natsConnection.Publish(e.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish job %s on %s: %w", job.ID, e.subject, err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	err = e.natsConnection.FlushWithContext(flushCtx)
	if err != nil {
		return fmt.Errorf("failed to flush job %s: %w", job.ID, err)
	}

	return nil
}
