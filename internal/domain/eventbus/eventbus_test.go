package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New()

	var mu sync.Mutex
	var got []DuplexEventData

	err := bus.Subscribe(EventDuplexStateChanged, func(data DuplexEventData) {
		mu.Lock()
		got = append(got, data)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	bus.Publish(EventDuplexStateChanged, DuplexEventData{
		SessionID: "s1",
		From:      "idle",
		To:        "listening",
		Reason:    "ptt_pressed",
	})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].To != "listening" {
		t.Errorf("expected To=listening, got %s", got[0].To)
	}
}

func TestAsyncEventBusDelivers(t *testing.T) {
	aeb := NewAsyncEventBus(2)
	aeb.Start()
	defer aeb.Stop()

	done := make(chan ConfirmationEventData, 1)
	err := aeb.SubscribeAsync(EventConfirmationResolved, func(data ConfirmationEventData) {
		done <- data
	})
	if err != nil {
		t.Fatalf("SubscribeAsync() error: %v", err)
	}

	aeb.PublishAsync(EventConfirmationResolved, ConfirmationEventData{
		SessionID:      "s1",
		ConfirmationID: "c1",
		Status:         "granted",
	})

	select {
	case data := <-done:
		if data.Status != "granted" {
			t.Errorf("expected status granted, got %s", data.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("async event not delivered")
	}
}

func TestAsyncEventBusSurvivesPanic(t *testing.T) {
	aeb := NewAsyncEventBus(1)
	aeb.Start()
	defer aeb.Stop()

	if err := aeb.SubscribeAsync(EventSystemError, func(data SystemEventData) {
		panic("subscriber blew up")
	}); err != nil {
		t.Fatalf("SubscribeAsync() error: %v", err)
	}

	done := make(chan struct{}, 1)
	if err := aeb.SubscribeAsync(EventSessionClosed, func(data SessionEventData) {
		done <- struct{}{}
	}); err != nil {
		t.Fatalf("SubscribeAsync() error: %v", err)
	}

	aeb.PublishAsync(EventSystemError, SystemEventData{Level: "error", Message: "test"})
	aeb.PublishAsync(EventSessionClosed, SessionEventData{SessionID: "s1"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after subscriber panic")
	}
}
