package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/lccanon/simdeg"
	"github.com/lccanon/simdeg/internal/logger"
	"github.com/lccanon/simdeg/internal/metrics"
	"github.com/lccanon/simdeg/internal/natsutil"
	"github.com/lccanon/simdeg/types"
)

// Message handling results reported to FeedMetrics.
const (
	resultAck  = "ack"
	resultNak  = "nak"
	resultTerm = "term"
)

// minPullExpiry is the smallest pull expiry accepted by JetStream.
const minPullExpiry = time.Second

// Consumer drains observations from a JetStream durable pull consumer into a
// Registry.
//
// Each message carries one JSON-encoded types.Observation. Applied
// observations are acked. Malformed observations and observations the
// registry rejects as invalid are terminated so they are never redelivered.
// Anything else is nak'ed and retried until MaxDeliver is reached.
//
// Observations for the same pool must be applied in order for the partitions
// to mean anything, so a Consumer handles messages sequentially.
type Consumer struct {
	js       jetstream.JetStream
	registry *simdeg.Registry
	cfg      simdeg.FeedConfig
	logger   types.Logger
	metrics  types.MetricsCollector
	rng      *rand.Rand

	// iterFactory creates the message iterator. Tests replace it.
	iterFactory func(cons jetstream.Consumer, batch int, expiry time.Duration) (jetstream.MessagesContext, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer creates a consumer feeding registry.
//
// Parameters:
//   - conn: NATS connection
//   - registry: Registry observations are applied to
//   - cfg: Feed configuration (validated)
//   - opts: Optional logger, metrics and retry seed
//
// Returns:
//   - *Consumer: Stopped consumer
//   - error: ErrNATSConnectionRequired, ErrInvalidInput or ErrInvalidConfig
//
// Example:
//
//	cons, err := feed.NewConsumer(nc, reg, cfg.Feed, feed.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	if err := cons.Start(ctx); err != nil {
//	    return err
//	}
//	defer cons.Stop(context.Background())
func NewConsumer(conn *nats.Conn, registry *simdeg.Registry, cfg simdeg.FeedConfig, opts ...Option) (*Consumer, error) {
	if conn == nil {
		return nil, types.ErrNATSConnectionRequired
	}
	if registry == nil {
		return nil, fmt.Errorf("nil registry: %w", types.ErrInvalidInput)
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

	return &Consumer{
		js:          js,
		registry:    registry,
		cfg:         cfg,
		logger:      logger.OrNop(o.logger),
		metrics:     metrics.OrNop(o.metrics),
		rng:         newRetryRNG(o.retrySeed),
		iterFactory: pullIterator,
	}, nil
}

// Start ensures the stream and the durable consumer exist, then starts the
// pull loop in the background.
//
// ctx only bounds the setup calls. The loop runs until Stop is called.
//
// Returns:
//   - error: ErrConsumerAlreadyStarted, or a JetStream setup error
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return types.ErrConsumerAlreadyStarted
	}

	if _, err := EnsureStream(ctx, c.js, c.cfg); err != nil {
		return err
	}

	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       c.cfg.DurableName,
		Description:   "simdeg observation feed",
		FilterSubject: FilterSubject(c.cfg.SubjectPrefix),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.cfg.AckWait,
		MaxDeliver:    c.cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return natsutil.Wrap("create durable consumer", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	c.logger.Info("observation consumer started",
		"stream", c.cfg.Stream,
		"durable", c.cfg.DurableName,
		"filter", FilterSubject(c.cfg.SubjectPrefix),
	)

	go c.run(runCtx, cons, c.done)

	return nil
}

// Stop stops the pull loop and waits for the message being handled, if any.
//
// The durable consumer is kept on the server so a restarted process resumes
// where this one stopped.
//
// Returns:
//   - error: ErrConsumerNotStarted, or ctx.Err() if the loop did not exit in time
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return types.ErrConsumerNotStarted
	}

	cancel()

	select {
	case <-done:
		c.logger.Info("observation consumer stopped", "durable", c.cfg.DurableName)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run recreates the message iterator until ctx is cancelled.
func (c *Consumer) run(ctx context.Context, cons jetstream.Consumer, done chan struct{}) {
	defer close(done)

	var delay time.Duration
	for {
		if ctx.Err() != nil {
			return
		}

		iter, err := c.iterFactory(cons, c.cfg.BatchSize, c.cfg.FetchTimeout)
		if err != nil {
			c.logIteratorError("failed to create message iterator", err)
			delay = jitterBackoff(delay, c.cfg.RetryBase, c.cfg.RetryMultiplier, c.cfg.RetryMax, c.rng)
			if !sleepCtx(ctx, delay) {
				return
			}

			continue
		}

		handled, err := c.drain(ctx, iter)
		if ctx.Err() != nil {
			return
		}
		if handled > 0 {
			delay = 0
		}

		// Missing heartbeats only need a fresh pull request.
		if errors.Is(err, jetstream.ErrNoHeartbeat) {
			c.logger.Warn("observation consumer: no heartbeat, recreating iterator")
			continue
		}

		c.logIteratorError("observation consumer: iterator error, retrying", err)
		delay = jitterBackoff(delay, c.cfg.RetryBase, c.cfg.RetryMultiplier, c.cfg.RetryMax, c.rng)
		if !sleepCtx(ctx, delay) {
			return
		}
	}
}

// drain handles messages until the iterator fails or ctx is cancelled.
func (c *Consumer) drain(ctx context.Context, iter jetstream.MessagesContext) (int, error) {
	// Next blocks until a message arrives, so cancellation has to stop the
	// iterator from outside.
	stop := context.AfterFunc(ctx, iter.Stop)
	defer stop()

	handled := 0
	for {
		msg, err := iter.Next()
		if err != nil {
			iter.Stop()
			return handled, err
		}

		c.handle(msg)
		handled++
	}
}

// handle applies one message and settles it.
func (c *Consumer) handle(msg jetstream.Msg) {
	start := time.Now()
	err := c.process(msg.Subject(), msg.Data())
	result := disposition(err)

	var ackErr error
	switch result {
	case resultAck:
		ackErr = msg.Ack()
	case resultTerm:
		c.logger.Warn("dropping observation", "subject", msg.Subject(), "error", err)
		ackErr = msg.Term()
	default:
		c.logger.Error("failed to apply observation, will retry", "subject", msg.Subject(), "error", err)
		ackErr = msg.Nak()
	}
	if ackErr != nil {
		c.logIteratorError("failed to settle message", ackErr)
	}

	c.metrics.RecordFeedMessage(result)
	c.metrics.ObserveFeedLatency(time.Since(start).Seconds())
}

// process decodes an observation and applies it to the registry.
//
// Pool and kind default to the subject tokens when the payload omits them.
func (c *Consumer) process(subject string, data []byte) error {
	var obs types.Observation
	if err := json.Unmarshal(data, &obs); err != nil {
		return fmt.Errorf("decode %s: %w: %w", subject, types.ErrInvalidObservation, err)
	}

	if pool, kind, ok := parseSubject(c.cfg.SubjectPrefix, subject); ok {
		if obs.Pool == "" {
			obs.Pool = pool
		}
		if obs.Kind == "" {
			obs.Kind = kind
		}
		if obs.Pool != pool || obs.Kind != kind {
			return fmt.Errorf("payload %s/%s does not match subject %s: %w",
				obs.Pool, obs.Kind, subject, types.ErrInvalidObservation)
		}
	}

	return c.registry.Apply(obs)
}

// disposition maps a processing error to a message result.
func disposition(err error) string {
	switch {
	case err == nil:
		return resultAck
	case types.IsValidationError(err), errors.Is(err, types.ErrUnknownPool):
		return resultTerm
	default:
		return resultNak
	}
}

func (c *Consumer) logIteratorError(msg string, err error) {
	switch class := natsutil.Classify(err); class {
	case natsutil.ClassShutdown:
		c.logger.Debug(msg, "error", err)
	case natsutil.ClassConnectivity:
		c.logger.Warn(msg, "error", err, "class", class.String())
	default:
		c.logger.Error(msg, "error", err, "class", class.String())
	}
}

// pullIterator opens a Messages iterator with a heartbeat at half the expiry.
func pullIterator(cons jetstream.Consumer, batch int, expiry time.Duration) (jetstream.MessagesContext, error) {
	if expiry < minPullExpiry {
		expiry = minPullExpiry
	}

	return cons.Messages(
		jetstream.PullMaxMessages(batch),
		jetstream.PullExpiry(expiry),
		jetstream.PullHeartbeat(expiry/2),
	)
}

// sleepCtx waits for d and reports whether ctx is still alive.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
