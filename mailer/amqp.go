package mailer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	account "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueGateway publishes messages to a durable AMQP queue. The email worker
// consumes the queue and hands each job to a real transport.
type QueueGateway struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	mu    sync.Mutex
}

var _ account.NotificationGateway = (*QueueGateway)(nil)

func NewQueueGateway(url, queue string) (*QueueGateway, error) {
	conn, ch, err := openQueue(url, queue)
	if err != nil {
		return nil, err
	}
	return &QueueGateway{conn: conn, ch: ch, queue: queue}, nil
}

func (q *QueueGateway) Send(ctx context.Context, msg account.Message) error {
	body, err := json.Marshal(JobFromMessage(msg))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode email job")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	err = q.ch.PublishWithContext(ctx,
		"",
		q.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return account.ErrServiceUnavailable(err, "failed to publish email job")
	}
	return nil
}

func (q *QueueGateway) Close() {
	if q == nil {
		return
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		_ = q.conn.Close()
	}
}

// Consumer delivers queued email jobs through a gateway. Undecodable jobs
// are dropped, failed deliveries are requeued.
type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	gateway  account.NotificationGateway
	logger   account.Logger
	timeout  time.Duration
	prefetch int
}

func NewConsumer(url, queue string, gateway account.NotificationGateway, logger account.Logger) (*Consumer, error) {
	conn, ch, err := openQueue(url, queue)
	if err != nil {
		return nil, err
	}
	return &Consumer{
		conn:     conn,
		ch:       ch,
		queue:    queue,
		gateway:  gateway,
		logger:   logger,
		timeout:  15 * time.Second,
		prefetch: 16,
	}, nil
}

func (c *Consumer) WithTimeout(timeout time.Duration) *Consumer {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// Run consumes until ctx is cancelled or the delivery channel closes
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set qos")
	}

	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume queue")
	}

	c.logger.Info("email worker listening", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var job EmailJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.To == "" {
		c.logger.Error("dropping malformed email job", "error", err)
		_ = d.Nack(false, false)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.gateway.Send(sendCtx, job.Message()); err != nil {
		c.logger.Error("email delivery failed", "to", job.To, "error", err)
		_ = d.Nack(false, !d.Redelivered)
		return
	}

	c.logger.Debug("email delivered", "to", job.To, "subject", job.Subject)
	_ = d.Ack(false)
}

func (c *Consumer) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func openQueue(url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, account.ErrServiceUnavailable(err, "amqp dial failed")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, account.ErrServiceUnavailable(err, "amqp channel failed")
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, account.ErrServiceUnavailable(err, "amqp queue declare failed")
	}

	return conn, ch, nil
}
