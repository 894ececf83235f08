package cli

import (
	"time"

	"github.com/spf13/cobra"

	"grievance-chat/internal/assistant"
	"grievance-chat/internal/observability"
	"grievance-chat/internal/render"
)

func newAssistantCmd(a *app) *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:     "assistant",
		Aliases: []string{"bot"},
		Short:   "Ask the portal helper, or file a grievance by answering its questions; /quit leaves",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := observability.WithFields("cmd", "assistant")

			cfg := assistant.Config{Delay: delay, Logger: log}
			// Questions work signed out; filing needs a live session.
			if a.sess.Authenticated() {
				if err := a.authorize(ctx); err != nil {
					log.Warn("assistant running signed out", "err", err)
				} else {
					cfg.Submit = a.client
				}
			}

			out := &syncWriter{w: cmd.OutOrStdout()}
			bot := assistant.New(cfg, func(text string) {
				out.println(render.Assistant(text))
			})
			bot.Greet()

			lines := readLines(ctx, cmd.InOrStdin())
			for {
				select {
				case <-ctx.Done():
					bot.Stop()
					bot.Wait()
					return nil
				case line, ok := <-lines:
					// Replies already typed still arrive before leaving.
					if !ok || line == quitCommand {
						bot.Wait()
						return nil
					}
					bot.Say(ctx, line)
				}
			}
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", assistant.DefaultDelay, "typing pause before each reply")
	return cmd
}
