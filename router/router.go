// Package router dispatches incoming chat events to command handlers.
// Events from the same user are processed strictly in order; different
// users run concurrently.
package router

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnknownCommand is returned for command names outside the table.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrPermission is returned when a non-owner invokes an owner command.
	ErrPermission = errors.New("permission denied")
)

// Event is one inbound message, already normalized by the transport layer.
type Event struct {
	UserID   string
	ChatID   string
	Username string
	Command  string // without the leading slash; empty for plain text
	Args     string // remainder after the command word
	IsOwner  bool
}

// HandlerFunc processes one event and returns the reply text.
type HandlerFunc func(ctx context.Context, ev Event) (string, error)

// Command is one entry in the closed command table.
type Command struct {
	Name        string
	Description string
	OwnerOnly   bool
	Handler     HandlerFunc
}

// ReplyFunc delivers a handler's reply back to the transport.
type ReplyFunc func(text string)

type task struct {
	ctx   context.Context
	ev    Event
	reply ReplyFunc
}

const (
	queueSize = 16
	queueIdle = 5 * time.Minute
)

// Router owns the command table and the per-user dispatch queues.
type Router struct {
	log     *zap.Logger
	errText func(error) string

	mu     sync.Mutex
	cmds   map[string]Command
	text   HandlerFunc
	queues map[string]chan task
	wg     sync.WaitGroup
	closed bool
}

// New builds an empty router. errText turns handler errors into user-facing
// text; nil falls back to the raw error message.
func New(log *zap.Logger, errText func(error) string) *Router {
	if errText == nil {
		errText = func(err error) string { return err.Error() }
	}
	return &Router{
		log:     log,
		errText: errText,
		cmds:    make(map[string]Command),
		queues:  make(map[string]chan task),
	}
}

// Register adds a command to the table. Registering twice under the same
// name is a programming error and panics at startup.
func (r *Router) Register(c Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(c.Name)
	if _, dup := r.cmds[name]; dup {
		panic("router: duplicate command " + name)
	}
	c.Name = name
	r.cmds[name] = c
}

// SetTextHandler installs the fallback for plain, non-command messages.
func (r *Router) SetTextHandler(h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = h
}

// Commands lists the table sorted by name, for help output.
func (r *Router) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch enqueues an event on the sender's queue and returns immediately.
// The reply callback fires from the queue worker once the handler finishes.
func (r *Router) Dispatch(ctx context.Context, ev Event, reply ReplyFunc) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	q, ok := r.queues[ev.UserID]
	if !ok {
		q = make(chan task, queueSize)
		r.queues[ev.UserID] = q
		r.wg.Add(1)
		go r.drain(ev.UserID, q)
	}
	// The send stays under the lock so the idle reaper in drain cannot
	// retire the queue between lookup and enqueue.
	select {
	case q <- task{ctx: ctx, ev: ev, reply: reply}:
		r.mu.Unlock()
	default:
		r.mu.Unlock()
		// The user is flooding faster than their handlers finish.
		reply("Slow down, still working on your previous messages.")
	}
}

// drain serializes one user's events. The worker retires after an idle
// period so abandoned users do not pin a goroutine forever.
func (r *Router) drain(userID string, q chan task) {
	defer r.wg.Done()
	idle := time.NewTimer(queueIdle)
	defer idle.Stop()
	for {
		select {
		case t, ok := <-q:
			if !ok {
				return
			}
			r.run(t)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(queueIdle)
		case <-idle.C:
			r.mu.Lock()
			// Re-check under the lock: Dispatch may have raced an enqueue.
			if len(q) == 0 {
				delete(r.queues, userID)
				r.mu.Unlock()
				return
			}
			r.mu.Unlock()
			idle.Reset(queueIdle)
		}
	}
}

func (r *Router) run(t task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panic",
				zap.String("user", t.ev.UserID),
				zap.String("command", t.ev.Command),
				zap.Any("panic", rec))
			t.reply("Something went wrong handling that, please try again.")
		}
	}()

	out, err := r.route(t.ctx, t.ev)
	if err != nil {
		r.log.Warn("handler error",
			zap.String("user", t.ev.UserID),
			zap.String("command", t.ev.Command),
			zap.Error(err))
		t.reply(r.errText(err))
		return
	}
	if out != "" {
		t.reply(out)
	}
}

func (r *Router) route(ctx context.Context, ev Event) (string, error) {
	r.mu.Lock()
	var h HandlerFunc
	var ownerOnly bool
	if ev.Command == "" {
		h = r.text
	} else if c, ok := r.cmds[strings.ToLower(ev.Command)]; ok {
		h = c.Handler
		ownerOnly = c.OwnerOnly
	}
	r.mu.Unlock()

	if h == nil {
		if ev.Command == "" {
			return "", nil
		}
		return "", ErrUnknownCommand
	}
	if ownerOnly && !ev.IsOwner {
		return "", ErrPermission
	}
	return h(ctx, ev)
}

// Close stops accepting events and waits for in-flight handlers.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, q := range r.queues {
		close(q)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
