package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

var (
	instance evbus.Bus
	asyncBus *AsyncEventBus
	once     sync.Once
)

func initBuses() {
	instance = New()
	asyncBus = NewAsyncEventBus(10)
	asyncBus.Start()
}

// Get returns the shared synchronous bus instance.
func Get() evbus.Bus {
	once.Do(initBuses)
	return instance
}

// GetAsync returns the shared asynchronous bus instance.
func GetAsync() *AsyncEventBus {
	once.Do(initBuses)
	return asyncBus
}

// New creates a fresh synchronous bus, unshared. Session loops use
// private buses so cross-session ordering is never implied.
func New() evbus.Bus {
	return evbus.New()
}

// Publish publishes on the shared synchronous bus.
func Publish(topic string, args ...interface{}) {
	Get().Publish(topic, args...)
}

// PublishAsync publishes on the shared asynchronous bus.
func PublishAsync(topic string, args ...interface{}) {
	GetAsync().PublishAsync(topic, args...)
}

// Subscribe registers a handler on the shared synchronous bus.
func Subscribe(topic string, fn interface{}) error {
	return Get().Subscribe(topic, fn)
}

// SubscribeAsync registers a handler on the shared asynchronous bus.
func SubscribeAsync(topic string, fn interface{}) error {
	return GetAsync().SubscribeAsync(topic, fn)
}

// Shutdown stops the async workers.
func Shutdown() {
	if asyncBus != nil {
		asyncBus.Stop()
	}
}
