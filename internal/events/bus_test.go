package events

import (
	"testing"
	"time"
)

func TestSubscribeReceivesTopicEvents(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch := b.Subscribe(TopicTask, 8)
	b.Publish(TopicTask, TaskCompletedEvent{ID: "t1"})
	b.Publish(TopicSchedule, WaveEmittedEvent{WaveID: "w1"})

	select {
	case ev := <-ch:
		if ev.TaskID() != "t1" {
			t.Errorf("got event for %q, want t1", ev.TaskID())
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected cross-topic event %v", ev.EventType())
	default:
	}
}

func TestSubscribeAllSeesEveryTopic(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch := b.SubscribeAll(8)
	b.Publish(TopicTask, TaskFailedEvent{ID: "t1", Category: "timeout"})
	b.Publish(TopicTuning, BottleneckDetectedEvent{Type: "cpu"})

	types := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			types = append(types, ev.EventType())
		case <-time.After(time.Second):
			t.Fatalf("received %d of 2 events", len(types))
		}
	}
	if types[0] != EventTypeTaskFailed || types[1] != EventTypeBottleneckDetected {
		t.Errorf("event types = %v", types)
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := NewBus()
	defer b.Close()

	b.Subscribe(TopicTask, 1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(TopicTask, TaskCompletedEvent{ID: "t"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestCloseClosesSubscriberChannels(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe(TopicTask, 1)
	all := b.SubscribeAll(1)
	b.Close()
	b.Close() // idempotent

	if _, open := <-ch; open {
		t.Error("topic channel still open after Close")
	}
	if _, open := <-all; open {
		t.Error("all-topics channel still open after Close")
	}

	// Subscriptions after Close come back already closed.
	late := b.Subscribe(TopicTask, 1)
	if _, open := <-late; open {
		t.Error("post-Close subscription channel open")
	}
	b.Publish(TopicTask, TaskCompletedEvent{ID: "t"})
}
