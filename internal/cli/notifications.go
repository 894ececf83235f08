package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"grievance-chat/internal/apierr"
	"grievance-chat/internal/notify"
	"grievance-chat/internal/observability"
	"grievance-chat/internal/render"
)

func newNotificationsCmd(a *app) *cobra.Command {
	var follow time.Duration
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Stream portal notifications; type `ack <id>` to clear the badge, `list` to replay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.authorize(ctx); err != nil {
				return err
			}

			out := &syncWriter{w: cmd.OutOrStdout()}
			agg := notify.NewAggregator(notify.Config{
				BaseURL:  a.cfg.WSURL,
				Admin:    a.sess.Privileged(),
				MaxItems: a.cfg.NotifyQueueSize,
				Dialer:   a.dialer,
				Logger:   observability.WithFields("cmd", "notifications"),
				OnEvent: func(item notify.Item, unseen int) {
					out.println(render.Notification(item, unseen))
				},
			})
			if err := agg.Start(ctx, a.sess.Token()); err != nil {
				return errors.New(apierr.Message(err))
			}
			defer agg.Stop()
			out.println(fmt.Sprintf("Listening for notifications as %s", displayName(a.sess.User())))

			var timeout <-chan time.Time
			if follow > 0 {
				timer := time.NewTimer(follow)
				defer timer.Stop()
				timeout = timer.C
			}

			lines := readLines(ctx, cmd.InOrStdin())
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-timeout:
					out.println(fmt.Sprintf("unseen: %d", agg.Unseen()))
					return nil
				case line, ok := <-lines:
					if !ok {
						// Input closed; keep streaming until the deadline or a signal.
						lines = nil
						if timeout == nil {
							<-ctx.Done()
							return nil
						}
						continue
					}
					if done := handleNotifyInput(agg, line, out); done {
						return nil
					}
				}
				if agg.State().Terminal() {
					out.println(render.Error("Notification channel closed."))
					return nil
				}
			}
		},
	}
	cmd.Flags().DurationVar(&follow, "for", 0, "stop after this long and print the unseen count")
	return cmd
}

func handleNotifyInput(agg *notify.Aggregator, line string, out *syncWriter) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case quitCommand:
		return true
	case "ack":
		target := 0
		if len(fields) > 1 {
			target, _ = strconv.Atoi(strings.TrimPrefix(fields[1], "#"))
		}
		agg.Acknowledge(target)
		out.println("Notifications cleared")
	case "list":
		items := agg.Items()
		if len(items) == 0 {
			out.println("No notifications")
		}
		for _, item := range items {
			out.println(render.Notification(item, agg.Unseen()))
		}
	case "count":
		out.println(fmt.Sprintf("unseen: %d", agg.Unseen()))
	default:
		out.println(render.Error("commands: ack <id>, list, count, /quit"))
	}
	return false
}
