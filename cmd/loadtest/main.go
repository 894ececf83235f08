// Command loadtest drives a running portal the way a cohort of students and
// one grievance cell would: register, file, accept, then chat from both sides.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"grievance-chat/internal/api"
	"grievance-chat/internal/apierr"
	"grievance-chat/internal/chat"
	"grievance-chat/internal/observability"
	"grievance-chat/internal/session"
)

type options struct {
	baseURL   string
	students  int
	messages  int
	rate      float64
	staffUser string
	staffPass string
	settle    time.Duration
}

type counters struct {
	sent   atomic.Int64
	echoed atomic.Int64
	failed atomic.Int64
}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8000", "portal base URL")
	flag.IntVar(&opts.students, "students", 50, "students, one grievance each (start small)")
	flag.IntVar(&opts.messages, "messages", 20, "messages per participant")
	flag.Float64Var(&opts.rate, "rate", 100, "messages per second per participant")
	flag.StringVar(&opts.staffUser, "staff-user", "cell", "staff account that accepts every chat")
	flag.StringVar(&opts.staffPass, "staff-password", "cell123", "staff password")
	flag.DurationVar(&opts.settle, "settle", 2*time.Second, "wait for trailing echoes after sending")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Printf("🔥 STARTING STRESS TEST: %d students, %d messages each side...", opts.students, opts.messages)
	start := time.Now()

	var c counters
	if err := run(ctx, opts, &c); err != nil {
		log.Fatalf("❌ load test aborted: %v", err)
	}
	log.Printf("✅ LOAD TEST COMPLETE in %s: sent=%d echoed=%d failed=%d",
		time.Since(start).Round(time.Millisecond), c.sent.Load(), c.echoed.Load(), c.failed.Load())
}

func run(ctx context.Context, opts options, c *counters) error {
	staffSess, staff, err := signIn(ctx, opts.baseURL, opts.staffUser, opts.staffPass)
	if err != nil {
		return fmt.Errorf("staff login: %w", err)
	}

	// The run id keeps admission numbers unique across repeated runs.
	runID := time.Now().Unix() % 100000
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.students; i++ {
		g.Go(func() error {
			if err := runStudent(gctx, opts, runID, i, staffSess, staff, c); err != nil {
				c.failed.Add(1)
				log.Printf("❌ student %d: %v", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func runStudent(ctx context.Context, opts options, runID int64, n int, staffSess *session.Session, staff *api.Client, c *counters) error {
	// 1. Register and sign in
	admission := fmt.Sprintf("LT%05d%04d", runID, n)
	const password = "password123"
	anon, err := api.New(opts.baseURL, nil, api.Options{Logger: observability.Discard()})
	if err != nil {
		return err
	}
	reg := api.Registration{Name: "Load Student " + admission, AdmissionNumber: admission, Password: password, Password2: password}
	if _, err := anon.Register(ctx, reg); err != nil {
		return fmt.Errorf("register: %s", apierr.Message(err))
	}
	sess, student, err := signIn(ctx, opts.baseURL, admission, password)
	if err != nil {
		return err
	}

	// 2. File a grievance and have staff accept the chat
	gr, err := student.CreateGrievance(ctx, "Load test "+admission, "Generated by loadtest.")
	if err != nil {
		return fmt.Errorf("create grievance: %s", apierr.Message(err))
	}
	if err := staff.AcceptChat(ctx, gr.ID); err != nil {
		return fmt.Errorf("accept chat: %s", apierr.Message(err))
	}
	conv := gr.Conversation(sess.UserID())

	// 3. Chat from both sides
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return spamChat(gctx, opts, sess, conv, admission, c) })
	g.Go(func() error { return spamChat(gctx, opts, staffSess, conv, opts.staffUser, c) })
	return g.Wait()
}

func signIn(ctx context.Context, baseURL, username, password string) (*session.Session, *api.Client, error) {
	sess := session.New(session.NewMemoryStore())
	client, err := api.New(baseURL, sess, api.Options{Logger: observability.Discard()})
	if err != nil {
		return nil, nil, err
	}
	pair, err := client.Login(ctx, username, password)
	if err != nil {
		return nil, nil, errors.New(apierr.Message(err))
	}
	if _, err := sess.Login(ctx, session.Tokens{Access: pair.Access, Refresh: pair.Refresh}); err != nil {
		return nil, nil, err
	}
	return sess, client, nil
}

func spamChat(ctx context.Context, opts options, sess *session.Session, conv chat.Conversation, who string, c *counters) error {
	view := chat.NewView(chat.ManagerConfig{BaseURL: opts.baseURL, Logger: observability.Discard()}, sess, func(e chat.Entry) {
		if e.Side == chat.Own {
			c.echoed.Add(1)
		}
	})
	defer view.Close()

	if err := view.Select(ctx, conv); err != nil {
		return fmt.Errorf("%s: join #%d: %w", who, conv.ID, err)
	}

	limiter := rate.NewLimiter(rate.Limit(opts.rate), 1)
	for i := 0; i < opts.messages; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if err := view.Send(fmt.Sprintf("LoadTest Msg %d from %s", i, who)); err != nil {
			return fmt.Errorf("%s: send: %s", who, apierr.Message(err))
		}
		c.sent.Add(1)
	}

	select {
	case <-time.After(opts.settle):
	case <-ctx.Done():
	}
	return nil
}
