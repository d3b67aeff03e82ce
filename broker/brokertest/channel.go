// Package brokertest provides an in-memory broker channel for tests.
package brokertest

import (
	"sync"

	"github.com/streadway/amqp"
)

type Declaration struct {
	Name    string
	Durable bool
}

// Message is a publishing together with the routing key it was sent to.
type Message struct {
	Key string
	amqp.Publishing
}

// Channel records the declared, consumed and published queues. Consume
// returns Deliveries regardless of the queue.
type Channel struct {
	Deliveries chan amqp.Delivery

	// Err, when set, is returned by every call.
	Err error

	// When Gate is set, Publish signals Entered, when set, and then blocks
	// until Gate receives or is closed.
	Gate    chan struct{}
	Entered chan struct{}

	mux       sync.Mutex
	declared  []Declaration
	consumed  []string
	published []Message
}

func NewChannel(buffer int) *Channel {
	return &Channel{Deliveries: make(chan amqp.Delivery, buffer)}
}

func (c *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if c.Err != nil {
		return amqp.Queue{}, c.Err
	}

	c.mux.Lock()
	defer c.mux.Unlock()
	c.declared = append(c.declared, Declaration{Name: name, Durable: durable})
	return amqp.Queue{Name: name}, nil
}

func (c *Channel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if c.Err != nil {
		return nil, c.Err
	}

	c.mux.Lock()
	defer c.mux.Unlock()
	c.consumed = append(c.consumed, queue)
	return c.Deliveries, nil
}

func (c *Channel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.Err != nil {
		return c.Err
	}

	if c.Gate != nil {
		if c.Entered != nil {
			c.Entered <- struct{}{}
		}

		<-c.Gate
	}

	c.mux.Lock()
	defer c.mux.Unlock()
	c.published = append(c.published, Message{Key: key, Publishing: msg})
	return nil
}

func (c *Channel) Declared() []Declaration {
	c.mux.Lock()
	defer c.mux.Unlock()
	return append([]Declaration(nil), c.declared...)
}

func (c *Channel) Consumed() []string {
	c.mux.Lock()
	defer c.mux.Unlock()
	return append([]string(nil), c.consumed...)
}

func (c *Channel) Published() []Message {
	c.mux.Lock()
	defer c.mux.Unlock()
	return append([]Message(nil), c.published...)
}
