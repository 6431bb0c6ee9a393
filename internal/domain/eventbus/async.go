package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// AsyncEventBus decouples publishers from slow subscribers with a
// bounded worker pool. Safety decisions never wait on it; only
// notification fan-out rides here.
type AsyncEventBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// NewAsyncEventBus creates an async bus with workerNum workers.
func NewAsyncEventBus(workerNum int) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = 10
	}

	return &AsyncEventBus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, 1000),
		stopChan:  make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (aeb *AsyncEventBus) Start() {
	for i := 0; i < aeb.workerNum; i++ {
		aeb.wg.Add(1)
		go aeb.worker()
	}
}

// Stop drains the workers and waits for them to exit.
func (aeb *AsyncEventBus) Stop() {
	close(aeb.stopChan)
	aeb.wg.Wait()
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for {
		select {
		case <-aeb.stopChan:
			return
		case event := <-aeb.workChan:
			func() {
				defer func() {
					recover() // a panicking subscriber must not kill the worker
				}()
				aeb.bus.Publish(event.topic, event.args...)
			}()
		}
	}
}

// Publish delivers synchronously on the underlying bus.
func (aeb *AsyncEventBus) Publish(topic string, args ...interface{}) {
	aeb.bus.Publish(topic, args...)
}

// PublishAsync queues the event; full queue drops rather than blocks.
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...interface{}) {
	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
	default:
	}
}

// Subscribe registers a handler for a topic.
func (aeb *AsyncEventBus) Subscribe(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

// SubscribeAsync registers a handler invoked from the worker pool.
func (aeb *AsyncEventBus) SubscribeAsync(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

// Unsubscribe removes a handler.
func (aeb *AsyncEventBus) Unsubscribe(topic string, handler interface{}) error {
	return aeb.bus.Unsubscribe(topic, handler)
}

// HasCallback reports whether the topic has subscribers.
func (aeb *AsyncEventBus) HasCallback(topic string) bool {
	return aeb.bus.HasCallback(topic)
}
