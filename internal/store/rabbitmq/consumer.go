package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

// attemptsHeader counts how often a message went through the retry queue.
const attemptsHeader = "x-podcast-attempts"

// Handler processes one job id. A non-nil error sends the message through
// the retry queue.
type Handler func(ctx context.Context, workerID int, jobID string) error

type ConsumerOptions struct {
	Concurrency int
	// MaxRedeliveries is how many times a message goes through the retry
	// queue before it is dead-lettered.
	MaxRedeliveries int
	RetryDelay      time.Duration
}

type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	opts   ConsumerOptions
	logger *log.Logger

	// retry republishes a delivery to the retry queue; swapped in tests.
	retry func(ctx context.Context, d amqp.Delivery, attempts int) error
}

func NewConsumer(url, queue string, opts ConsumerOptions, logger *log.Logger) (*Consumer, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.Concurrency > 50 {
		opts.Concurrency = 50
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 30 * time.Second
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := declareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	//  strict concurrency control
	if err := ch.Qos(opts.Concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	c := &Consumer{conn: conn, ch: ch, queue: queue, opts: opts, logger: logger.With("component", "rabbitmq")}
	c.retry = c.publishRetry
	return c, nil
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Run consumes until ctx is done or the broker closes the channel, feeding
// deliveries to a pool of Concurrency workers.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.logger.Info("worker started", "queue", c.queue, "concurrency", c.opts.Concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, c.opts.Concurrency*2)

	var wg sync.WaitGroup
	wg.Add(c.opts.Concurrency)
	for i := 0; i < c.opts.Concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.handleDelivery(ctx, workerID, d, handle)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return nil

		case d, ok := <-msgs:
			if !ok {
				close(jobs)
				wg.Wait()
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, workerID int, d amqp.Delivery, handle Handler) {
	var m JobMessage
	if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
		c.logger.Warn("bad message", "worker", workerID, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := handle(ctx, workerID, m.JobID); err != nil {
		attempts := deliveryAttempts(d)
		if attempts >= c.opts.MaxRedeliveries {
			c.logger.Error("giving up on job message", "worker", workerID, "job", m.JobID, "attempts", attempts, "error", err)
			_ = d.Nack(false, false)
			return
		}
		if rerr := c.retry(context.WithoutCancel(ctx), d, attempts+1); rerr != nil {
			c.logger.Error("schedule retry", "worker", workerID, "job", m.JobID, "error", rerr)
			_ = d.Nack(false, true)
			return
		}
	}

	if err := d.Ack(false); err != nil {
		c.logger.Warn("ack failed", "worker", workerID, "job", m.JobID, "error", err)
	}
}

func (c *Consumer) publishRetry(ctx context.Context, d amqp.Delivery, attempts int) error {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.ch.PublishWithContext(cctx, "", c.queue+".retry", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
		Timestamp:    time.Now(),
		Expiration:   strconv.FormatInt(c.opts.RetryDelay.Milliseconds(), 10),
		Headers:      amqp.Table{attemptsHeader: int32(attempts)},
	})
}

func deliveryAttempts(d amqp.Delivery) int {
	switch v := d.Headers[attemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
