// Package assistant is the scripted portal helper. It answers a few common
// questions and walks a student through filing a grievance, replying after a
// short typing delay.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"grievance-chat/internal/api"
	"grievance-chat/internal/observability"
)

const (
	DefaultDelay = 500 * time.Millisecond

	Greeting      = "Hello! How can I help you? You can ask a question or type 'submit grievance'."
	askTitle      = "Sure, I can help with that. What is the title of your grievance?"
	askDetails    = "Got it. Now, please describe the issue in detail."
	startOver     = "Okay, let's start over. Type 'submit grievance' to begin again."
	notUnderstood = "Sorry, I don't understand. Try asking about 'status' or 'how to submit'."
	needLogin     = "You must be logged in to submit a grievance."
	submitted     = "Your grievance has been successfully submitted!"
	submitFailed  = "Sorry, there was an error submitting your grievance."

	startPhrase = "submit grievance"
)

// faqs are matched in order by substring of the lowercased input.
var faqs = []struct{ key, answer string }{
	{"how to submit", "You can submit a grievance right here in this chat! Just type 'submit grievance' to start."},
	{"status", "You can check the status of your submitted grievances with `grievance-chat grievances list`."},
	{"time", "The resolution time varies, but we aim to address all issues as quickly as possible."},
}

// Submitter files the grievance the conversation collected.
type Submitter interface {
	CreateGrievance(ctx context.Context, title, description string) (api.Grievance, error)
}

type Config struct {
	// Delay is the typing pause before every reply. Zero means DefaultDelay.
	Delay time.Duration
	// Submit is nil when nobody is signed in.
	Submit Submitter
	Logger *slog.Logger
}

type step int

const (
	stepIdle step = iota
	stepTitle
	stepDetails
	stepConfirm
)

// Bot holds one conversation. Say may be called from any goroutine; replies
// are delivered one at a time, in the order the inputs arrived.
type Bot struct {
	delay  time.Duration
	submit Submitter
	log    *slog.Logger
	reply  func(string)

	mu          sync.Mutex
	step        step
	title       string
	description string
	queue       []func() string
	timers      map[*time.Timer]struct{}
	stopped     bool

	deliverMu sync.Mutex
	pending   sync.WaitGroup
}

func New(cfg Config, reply func(string)) *Bot {
	delay := cfg.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	log := cfg.Logger
	if log == nil {
		log = observability.Logger()
	}
	return &Bot{
		delay:  delay,
		submit: cfg.Submit,
		log:    log.With("component", "assistant"),
		reply:  reply,
		timers: make(map[*time.Timer]struct{}),
	}
}

// Greet sends the opening line without delay.
func (b *Bot) Greet() {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()
	b.reply(Greeting)
}

// Say advances the conversation with input. The state moves immediately; the
// reply follows after the typing delay. Blank input is ignored.
func (b *Bot) Say(ctx context.Context, input string) {
	if strings.TrimSpace(input) == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.queue = append(b.queue, b.advance(ctx, input))

	b.pending.Add(1)
	var t *time.Timer
	t = time.AfterFunc(b.delay, func() {
		b.mu.Lock()
		delete(b.timers, t)
		b.mu.Unlock()
		b.deliverNext()
	})
	b.timers[t] = struct{}{}
}

// advance applies input to the script and returns the reply to produce. Callers hold b.mu.
func (b *Bot) advance(ctx context.Context, input string) func() string {
	lower := strings.ToLower(input)
	text := func(s string) func() string { return func() string { return s } }

	switch b.step {
	case stepTitle:
		b.title = input
		b.step = stepDetails
		return text(askDetails)
	case stepDetails:
		b.description = input
		b.step = stepConfirm
		return text(fmt.Sprintf("Confirm submission:\nTitle: %s\nDescription: %s\nIs this correct? (yes/no)", b.title, b.description))
	case stepConfirm:
		b.step = stepIdle
		if strings.TrimSpace(lower) != "yes" {
			return text(startOver)
		}
		title, description := b.title, b.description
		return func() string { return b.file(ctx, title, description) }
	}

	if strings.Contains(lower, startPhrase) {
		b.step = stepTitle
		return text(askTitle)
	}
	for _, f := range faqs {
		if strings.Contains(lower, f.key) {
			return text(f.answer)
		}
	}
	return text(notUnderstood)
}

func (b *Bot) file(ctx context.Context, title, description string) string {
	if b.submit == nil {
		return needLogin
	}
	g, err := b.submit.CreateGrievance(ctx, title, description)
	if err != nil {
		b.log.Warn("assistant submission failed", "err", err)
		return submitFailed
	}
	b.log.Info("assistant filed grievance", "grievance", g.ID)
	return submitted
}

// deliverNext pops the oldest queued reply. Timers may fire out of order, so
// each one takes whatever is at the front rather than its own input's reply.
func (b *Bot) deliverNext() {
	defer b.pending.Done()
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if len(b.queue) == 0 || b.stopped {
		b.mu.Unlock()
		return
	}
	next := b.queue[0]
	b.queue = b.queue[1:]
	b.mu.Unlock()

	b.reply(next())
}

// Wait blocks until every reply scheduled so far has been delivered or dropped.
func (b *Bot) Wait() {
	b.pending.Wait()
}

// Stop drops replies that have not been delivered yet. One already being
// delivered still arrives; Wait returns once it has.
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.queue = nil
	for t := range b.timers {
		if t.Stop() {
			b.pending.Done()
		}
		delete(b.timers, t)
	}
}
