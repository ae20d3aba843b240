package chat

import (
	"context"
	"testing"
	"time"
)

func TestHub_RoutesToSubscribedChannel(t *testing.T) {
	h := NewHub(10)
	sub := h.Subscribe("whatsapp")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.StartRouter(ctx)

	h.Out <- Outbound{Channel: "whatsapp", ChatID: "123", Content: "hi"}

	select {
	case msg := <-sub:
		if msg.Content != "hi" {
			t.Errorf("Content = %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for routed message")
	}
}

func TestHub_DropsUnsubscribedChannel(t *testing.T) {
	h := NewHub(10)
	sub := h.Subscribe("whatsapp")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.StartRouter(ctx)

	h.Out <- Outbound{Channel: "telegram", ChatID: "123", Content: "not for whatsapp"}

	select {
	case msg := <-sub:
		t.Fatalf("unexpected message delivered to whatsapp: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_InChannelDeliversInbound(t *testing.T) {
	h := NewHub(1)
	h.In <- Inbound{Channel: "whatsapp", SenderID: "+1", Content: "hello"}
	select {
	case msg := <-h.In:
		if msg.SenderID != "+1" || msg.Content != "hello" {
			t.Errorf("got %+v", msg)
		}
	default:
		t.Fatal("expected a buffered inbound message")
	}
}
