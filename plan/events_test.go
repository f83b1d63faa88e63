package plan

import "testing"

func TestChannelListenersRunInRegistrationOrder(t *testing.T) {
	ch := NewChannel()
	var order []string
	ch.Subscribe(EventFinish, func(Event) { order = append(order, "first") })
	second := ch.Subscribe(EventFinish, func(Event) { order = append(order, "second") })
	ch.Subscribe(EventFinish, func(Event) { order = append(order, "third") })
	ch.Subscribe(EventComplete, func(Event) { order = append(order, "other") })
	ch.Publish(Event{Type: EventFinish})
	if len(order) != 3 || order[0] != "first" || order[2] != "third" {
		t.Fatalf("unexpected order %v", order)
	}
	second.Close()
	order = nil
	ch.Publish(Event{Type: "FINISH"})
	if len(order) != 2 || order[1] != "third" {
		t.Fatalf("closed listener still called: %v", order)
	}
}

func TestStreamFiltersByType(t *testing.T) {
	ch := NewChannel()
	sub := ch.Stream(4, EventFinish)
	defer sub.Close()
	ch.Publish(Event{Type: EventStepStart})
	ch.Publish(Event{Type: EventFinish, RunID: "r1"})
	select {
	case got := <-sub.Events:
		if got.Type != EventFinish || got.RunID != "r1" {
			t.Fatalf("unexpected event %+v", got)
		}
	default:
		t.Fatalf("expected finish to be delivered")
	}
	select {
	case got := <-sub.Events:
		t.Fatalf("unexpected extra event %+v", got)
	default:
	}
}

func TestStreamKeepsCriticalEventsOnOverflow(t *testing.T) {
	ch := NewChannel()
	sub := ch.Stream(1)
	defer sub.Close()
	ch.Publish(Event{Type: EventStepStart, Step: 0})
	ch.Publish(Event{Type: EventFinish})
	ch.Publish(Event{Type: EventStepStart, Step: 1})
	got := <-sub.Events
	if got.Type != EventFinish {
		t.Fatalf("expected finish to survive overflow, got %s", got.Type)
	}
	select {
	case extra := <-sub.Events:
		t.Fatalf("progress event should have been dropped, got %+v", extra)
	default:
	}
}

func TestStreamCloseClosesChannel(t *testing.T) {
	ch := NewChannel()
	sub := ch.Stream(1)
	sub.Close()
	if _, ok := <-sub.Events; ok {
		t.Fatalf("expected closed channel")
	}
	ch.Publish(Event{Type: EventFinish})
	sub.Close()
}

func TestStreamOverflowEvictsProgressBeforeLifecycle(t *testing.T) {
	ch := NewChannel()
	sub := ch.Stream(2)
	defer sub.Close()
	ch.Publish(Event{Type: EventComplete})
	ch.Publish(Event{Type: EventStepEnd, Step: 0})
	ch.Publish(Event{Type: EventFinish})
	var got []EventType
	for i := 0; i < 2; i++ {
		got = append(got, (<-sub.Events).Type)
	}
	if !sameTypes(got, []EventType{EventComplete, EventFinish}) {
		t.Fatalf("expected complete to survive overflow, got %v", got)
	}
}

func TestStreamOverflowOfLifecycleEventsDropsOldest(t *testing.T) {
	ch := NewChannel()
	sub := ch.Stream(1)
	defer sub.Close()
	ch.Publish(Event{Type: EventComplete})
	ch.Publish(Event{Type: EventFinish})
	if got := (<-sub.Events).Type; got != EventFinish {
		t.Fatalf("expected finish to replace complete in a full stream, got %s", got)
	}
}
