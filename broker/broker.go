package broker

import (
	"fmt"

	"github.com/streadway/amqp"
)

// Channel is the part of *amqp.Channel the server and the clients use.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

var _ Channel = (*amqp.Channel)(nil)

const ContentType = "application/json"

func Dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}

	return conn, ch, nil
}

func DeclareQueue(ch Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,  // queue name
		true,  // durable
		false, // auto delete
		false, // exclusive
		false, // no wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}

	return nil
}

// Consume starts an auto-acknowledged consumer on queue.
func Consume(ch Channel, queue, consumer string) (<-chan amqp.Delivery, error) {
	msgs, err := ch.Consume(
		queue,
		consumer,
		true,  // auto ack
		false, // exclusive
		false, // no local
		false, // no wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume queue %s: %w", queue, err)
	}

	return msgs, nil
}

// Publish sends body to queue through the default exchange.
func Publish(ch Channel, queue string, msg amqp.Publishing) error {
	if msg.ContentType == "" {
		msg.ContentType = ContentType
	}

	if err := ch.Publish("", queue, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}

	return nil
}
