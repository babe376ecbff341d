package worker

import (
	"context"
	"time"

	"github.com/cuongbtq/media-transcoder/shared/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Delivery is one received queue message
type Delivery interface {
	Body() []byte
	Ack() error
	// Reject returns the message to the queue when requeue is set, otherwise it is dead-lettered
	Reject(requeue bool) error
}

// Queue hands out at most one message per call, waiting up to wait for it.
// A nil Delivery with a nil error means the wait elapsed.
type Queue interface {
	Receive(ctx context.Context, wait time.Duration) (Delivery, error)
}

// AMQPQueue consumes the job queue through the shared RabbitMQ client
type AMQPQueue struct {
	client      *rabbitmq.Client
	consumerTag string
}

func NewAMQPQueue(client *rabbitmq.Client, consumerTag string) *AMQPQueue {
	return &AMQPQueue{client: client, consumerTag: consumerTag}
}

func (q *AMQPQueue) Receive(ctx context.Context, wait time.Duration) (Delivery, error) {
	d, err := q.client.Receive(ctx, q.consumerTag, wait)
	if err != nil || d == nil {
		return nil, err
	}
	return amqpDelivery{d: d}, nil
}

// Close stops prefetching so unstarted messages return to the queue
func (q *AMQPQueue) Close() error {
	return q.client.StopConsuming()
}

type amqpDelivery struct {
	d *amqp.Delivery
}

func (a amqpDelivery) Body() []byte { return a.d.Body }

func (a amqpDelivery) Ack() error { return a.d.Ack(false) }

func (a amqpDelivery) Reject(requeue bool) error { return a.d.Nack(false, requeue) }
