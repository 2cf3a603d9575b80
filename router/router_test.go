package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type collector struct {
	mu      sync.Mutex
	replies []string
	ch      chan struct{}
}

func newCollector() *collector { return &collector{ch: make(chan struct{}, 64)} }

func (c *collector) reply(text string) {
	c.mu.Lock()
	c.replies = append(c.replies, text)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for reply %d of %d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.replies))
	copy(out, c.replies)
	return out
}

func TestDispatchRunsHandler(t *testing.T) {
	r := New(zap.NewNop(), nil)
	defer r.Close()
	r.Register(Command{Name: "ping", Handler: func(context.Context, Event) (string, error) {
		return "pong", nil
	}})

	c := newCollector()
	r.Dispatch(context.Background(), Event{UserID: "u1", Command: "ping"}, c.reply)
	replies := c.wait(t, 1)
	if replies[0] != "pong" {
		t.Fatalf("reply = %q", replies[0])
	}
}

func TestUnknownCommand(t *testing.T) {
	r := New(zap.NewNop(), func(err error) string {
		if errors.Is(err, ErrUnknownCommand) {
			return "no such command"
		}
		return err.Error()
	})
	defer r.Close()

	c := newCollector()
	r.Dispatch(context.Background(), Event{UserID: "u1", Command: "bogus"}, c.reply)
	if got := c.wait(t, 1)[0]; got != "no such command" {
		t.Fatalf("reply = %q", got)
	}
}

func TestOwnerOnlyGate(t *testing.T) {
	r := New(zap.NewNop(), nil)
	defer r.Close()
	called := false
	r.Register(Command{Name: "ban", OwnerOnly: true, Handler: func(context.Context, Event) (string, error) {
		called = true
		return "banned", nil
	}})

	c := newCollector()
	r.Dispatch(context.Background(), Event{UserID: "u1", Command: "ban"}, c.reply)
	if got := c.wait(t, 1)[0]; got != ErrPermission.Error() {
		t.Fatalf("reply = %q", got)
	}
	if called {
		t.Fatal("owner handler ran for non-owner")
	}

	r.Dispatch(context.Background(), Event{UserID: "owner", Command: "ban", IsOwner: true}, c.reply)
	if got := c.wait(t, 1); got[len(got)-1] != "banned" {
		t.Fatalf("replies = %v", got)
	}
}

func TestSameUserEventsSerialized(t *testing.T) {
	r := New(zap.NewNop(), nil)
	defer r.Close()

	var mu sync.Mutex
	var order []string
	var inFlight, maxInFlight int
	r.SetTextHandler(func(_ context.Context, ev Event) (string, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		order = append(order, ev.Args)
		mu.Unlock()
		return "ok", nil
	})

	c := newCollector()
	for _, arg := range []string{"a", "b", "c", "d"} {
		r.Dispatch(context.Background(), Event{UserID: "u1", Args: arg}, c.reply)
	}
	c.wait(t, 4)

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 1 {
		t.Fatalf("max in flight = %d, want 1", maxInFlight)
	}
	if strings.Join(order, "") != "abcd" {
		t.Fatalf("order = %v", order)
	}
}

func TestDifferentUsersRunConcurrently(t *testing.T) {
	r := New(zap.NewNop(), nil)
	defer r.Close()

	gate := make(chan struct{})
	r.SetTextHandler(func(_ context.Context, ev Event) (string, error) {
		if ev.UserID == "slow" {
			<-gate
		}
		return ev.UserID, nil
	})

	c := newCollector()
	r.Dispatch(context.Background(), Event{UserID: "slow"}, c.reply)
	r.Dispatch(context.Background(), Event{UserID: "fast"}, c.reply)

	// The fast user's reply arrives while the slow user's handler blocks.
	replies := c.wait(t, 1)
	if replies[0] != "fast" {
		t.Fatalf("first reply = %q", replies[0])
	}
	close(gate)
	c.wait(t, 1)
}

func TestHandlerPanicIsContained(t *testing.T) {
	r := New(zap.NewNop(), nil)
	defer r.Close()
	r.Register(Command{Name: "boom", Handler: func(context.Context, Event) (string, error) {
		panic("kaboom")
	}})
	r.Register(Command{Name: "ping", Handler: func(context.Context, Event) (string, error) {
		return "pong", nil
	}})

	c := newCollector()
	r.Dispatch(context.Background(), Event{UserID: "u1", Command: "boom"}, c.reply)
	c.wait(t, 1)
	r.Dispatch(context.Background(), Event{UserID: "u1", Command: "ping"}, c.reply)
	replies := c.wait(t, 1)
	if replies[len(replies)-1] != "pong" {
		t.Fatalf("replies = %v", replies)
	}
}

func TestPlainTextWithoutHandlerIsDropped(t *testing.T) {
	r := New(zap.NewNop(), nil)
	defer r.Close()

	done := make(chan struct{})
	r.Register(Command{Name: "ping", Handler: func(context.Context, Event) (string, error) {
		close(done)
		return "", nil
	}})

	r.Dispatch(context.Background(), Event{UserID: "u1", Args: "hello"}, func(string) {
		t.Error("plain text without a handler must not reply")
	})
	r.Dispatch(context.Background(), Event{UserID: "u1", Command: "ping"}, func(string) {})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue stalled")
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	r := New(zap.NewNop(), nil)
	defer r.Close()
	r.Register(Command{Name: "x", Handler: func(context.Context, Event) (string, error) { return "", nil }})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate command")
		}
	}()
	r.Register(Command{Name: "X", Handler: func(context.Context, Event) (string, error) { return "", nil }})
}
