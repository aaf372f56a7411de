package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/lccanon/simdeg"
	"github.com/lccanon/simdeg/internal/logger"
	"github.com/lccanon/simdeg/internal/natsutil"
	"github.com/lccanon/simdeg/types"
)

// Publisher publishes observations to the feed stream.
//
// It is safe for concurrent use. Ordering is only guaranteed between
// publications made by the same goroutine.
type Publisher struct {
	js     jetstream.JetStream
	cfg    simdeg.FeedConfig
	logger types.Logger
}

// NewPublisher creates a publisher for cfg.SubjectPrefix.
//
// Parameters:
//   - conn: NATS connection
//   - cfg: Feed configuration (validated)
//   - opts: Optional logger
//
// Returns:
//   - *Publisher: Publisher ready to use
//   - error: ErrNATSConnectionRequired or ErrInvalidConfig
func NewPublisher(conn *nats.Conn, cfg simdeg.FeedConfig, opts ...Option) (*Publisher, error) {
	if conn == nil {
		return nil, types.ErrNATSConnectionRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	return &Publisher{js: js, cfg: cfg, logger: logger.OrNop(o.logger)}, nil
}

// EnsureStream creates the feed stream when it does not exist yet.
//
// Returns:
//   - jetstream.Stream: Existing or created stream
//   - error: Wrapped JetStream error
func (p *Publisher) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	return EnsureStream(ctx, p.js, p.cfg)
}

// Publish validates obs and publishes it to <prefix>.<pool>.<kind>.
//
// Returns:
//   - uint64: Stream sequence assigned to the observation
//   - error: ErrInvalidObservation, or a publish error (wrapping
//     ErrConnectivity when the server could not be reached)
//
// Example:
//
//	seq, err := pub.Publish(ctx, simdeg.Observation{
//	    Pool: "boinc", Kind: simdeg.KindAgreement,
//	    WorkerA: "w1", WorkerB: "w2", Outcome: 1,
//	})
func (p *Publisher) Publish(ctx context.Context, obs types.Observation) (uint64, error) {
	if err := obs.Validate(); err != nil {
		return 0, err
	}

	subject, err := Subject(p.cfg.SubjectPrefix, obs.Pool, obs.Kind)
	if err != nil {
		return 0, err
	}

	data, err := json.Marshal(obs)
	if err != nil {
		return 0, fmt.Errorf("encode observation: %w", err)
	}

	ack, err := p.js.Publish(ctx, subject, data)
	if err != nil {
		return 0, natsutil.Wrap("publish "+subject, err)
	}

	p.logger.Debug("observation published", "subject", subject, "seq", ack.Sequence)

	return ack.Sequence, nil
}

// EnsureStream looks up cfg.Stream and creates it, bound to the feed filter
// subject, when it is missing.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg simdeg.FeedConfig) (jetstream.Stream, error) {
	stream, err := js.Stream(ctx, cfg.Stream)
	if err == nil {
		return stream, nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return nil, fmt.Errorf("lookup stream %s: %w", cfg.Stream, err)
	}

	stream, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "simdeg observations",
		Subjects:    []string{FilterSubject(cfg.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}

	return stream, nil
}
