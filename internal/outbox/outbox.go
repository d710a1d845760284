package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Navaneeth272001/ASR-Track-Tech/internal/delivery"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/metrics"
)

// Policy decides what a flush does with a record it cannot use
type Policy string

const (
	// PolicyStop publishes every record as stored and stops at the first failure
	PolicyStop Policy = "stop"
	// PolicySkip additionally skips records whose payload no longer decodes
	PolicySkip Policy = "skip"
)

// ParsePolicy validates a configured policy; empty means stop
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyStop:
		return PolicyStop, nil
	case PolicySkip:
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("flush policy must be 'stop' or 'skip', got %q", s)
	}
}

const flushPage = 100

// Publisher is the part of a transport the outbox uses
type Publisher interface {
	Publish(ctx context.Context, destination string, payload []byte, qos delivery.QoS) error
}

// Options configures an Outbox
type Options struct {
	Route   delivery.Route
	Policy  Policy
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// FlushResult summarizes one flush pass
type FlushResult struct {
	Attempted int
	Sent      int
	Skipped   int
	Remaining int64
	Err       error
}

// Stats is the outbox summary exposed over the monitoring API
type Stats struct {
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
}

// Outbox delivers messages in real time and queues the ones that fail.
// Queued messages are retried in insertion order by Flush. Deliver and Flush
// are serialized.
type Outbox struct {
	store   *Store
	pub     Publisher
	route   delivery.Route
	policy  Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu sync.Mutex
}

// New creates an outbox over an open store
func New(store *Store, pub Publisher, opts Options) *Outbox {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Policy == "" {
		opts.Policy = PolicyStop
	}
	return &Outbox{
		store:   store,
		pub:     pub,
		route:   opts.Route,
		policy:  opts.Policy,
		logger:  opts.Logger.With("component", "outbox"),
		metrics: opts.Metrics,
		now:     opts.Now,
	}
}

// Deliver flushes the backlog, then publishes msg. A failed publish is
// queued, not returned; the only error is a failure to queue, which would
// otherwise lose the message.
func (o *Outbox) Deliver(ctx context.Context, msg *delivery.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	flushed := o.flushLocked(ctx)

	payload, err := msg.Marshal()
	if err != nil {
		return err
	}

	// The flush just failed to reach the transport; queue without a second dial
	attempts := 0
	if errors.Is(flushed.Err, delivery.ErrNotConnected) {
		err = flushed.Err
	} else {
		attempts = 1
		err = o.pub.Publish(ctx, o.route.Destination, payload, o.route.QoS)
	}
	if err == nil {
		o.metrics.RecordDelivery("sent")
		o.logger.Info("Delivered",
			slog.String("message_id", msg.MessageID),
			slog.String("category", msg.Category),
			slog.String("intent", msg.Intent))
		return nil
	}

	o.logger.Warn("Publish failed, queueing",
		slog.String("message_id", msg.MessageID),
		slog.Bool("timeout", delivery.IsTimeout(err)),
		"error", err)

	// Shutdown cancels ctx; the append must still happen
	rec, appendErr := o.store.Append(context.WithoutCancel(ctx), payload, o.now(), attempts)
	if appendErr != nil {
		o.metrics.RecordDelivery("store_error")
		return fmt.Errorf("failed to queue message %s: %w", msg.MessageID, appendErr)
	}
	o.metrics.RecordDelivery("queued")
	o.logger.Info("Queued", slog.Uint64("record_id", rec.ID), slog.String("message_id", msg.MessageID))
	o.refreshPending(ctx)
	return nil
}

// Flush publishes pending records oldest first and stops at the first
// transport failure
func (o *Outbox) Flush(ctx context.Context) FlushResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushLocked(ctx)
}

func (o *Outbox) flushLocked(ctx context.Context) FlushResult {
	start := time.Now()
	var res FlushResult

	var after uint64
loop:
	for {
		recs, err := o.store.Pending(ctx, after, flushPage)
		if err != nil {
			res.Err = err
			break
		}
		if len(recs) == 0 {
			break
		}

		for _, rec := range recs {
			after = rec.ID
			res.Attempted++

			if o.policy == PolicySkip {
				if _, err := delivery.UnmarshalMessage([]byte(rec.Payload)); err != nil {
					res.Skipped++
					o.logger.Error("Skipping undecodable record", slog.Uint64("record_id", rec.ID), "error", err)
					if err := o.store.MarkAttempt(ctx, rec.ID); err != nil {
						o.logger.Error("Failed to count attempt", "error", err)
					}
					continue
				}
			}

			if err := o.pub.Publish(ctx, o.route.Destination, []byte(rec.Payload), o.route.QoS); err != nil {
				res.Err = err
				if err := o.store.MarkAttempt(context.WithoutCancel(ctx), rec.ID); err != nil {
					o.logger.Error("Failed to count attempt", "error", err)
				}
				break loop
			}

			if err := o.store.MarkSent(context.WithoutCancel(ctx), rec.ID, o.now()); err != nil {
				// Delivered but not recorded; it will be sent again next pass
				res.Err = err
				break loop
			}
			res.Sent++
		}
	}

	pending, _, err := o.store.Counts(context.WithoutCancel(ctx))
	if err == nil {
		res.Remaining = pending
		o.metrics.SetOutboxPending(pending)
	}

	if res.Attempted > 0 {
		o.metrics.RecordFlush(time.Since(start).Seconds(), res.Sent)
		o.logger.Info("Flushed outbox",
			slog.Int("attempted", res.Attempted),
			slog.Int("sent", res.Sent),
			slog.Int("skipped", res.Skipped),
			slog.Int64("remaining", res.Remaining),
			slog.Duration("took", time.Since(start)))
	}
	if res.Err != nil {
		o.logger.Warn("Flush stopped", "error", res.Err)
	}
	return res
}

func (o *Outbox) refreshPending(ctx context.Context) {
	pending, _, err := o.store.Counts(context.WithoutCancel(ctx))
	if err != nil {
		o.logger.Error("Failed to count pending records", "error", err)
		return
	}
	o.metrics.SetOutboxPending(pending)
}

// Stats returns pending and sent counts
func (o *Outbox) Stats(ctx context.Context) (Stats, error) {
	pending, sent, err := o.store.Counts(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Pending: pending, Sent: sent}, nil
}

// Recent returns up to limit records, newest first
func (o *Outbox) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return o.store.Recent(ctx, limit)
}
