package queue

import "errors"

// ErrQueueFull is returned by Enqueue when the buffer has no room.
var ErrQueueFull = errors.New("queue full")

// Queue represents a basic queue.
type Queue interface {
	Enqueue(item interface{}) error
	Dequeue() interface{}
	Size() int
	ReadAllMessages() []interface{}
	ClearQueue()
}
