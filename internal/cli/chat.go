package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"grievance-chat/internal/apierr"
	"grievance-chat/internal/chat"
	"grievance-chat/internal/observability"
	"grievance-chat/internal/render"
)

const quitCommand = "/quit"

func newConversationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"inbox"},
		Short:   "List accepted chats",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.authorize(cmd.Context()); err != nil {
				return err
			}
			convs, err := a.client.ChatConversations(cmd.Context(), a.sess.UserID())
			if err != nil {
				return errors.New(apierr.Message(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.Conversations(convs))
			return nil
		},
	}
}

func newChatCmd(a *app) *cobra.Command {
	var width int
	cmd := &cobra.Command{
		Use:   "chat <id>",
		Short: "Join a conversation; each input line is sent, /quit leaves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.authorize(ctx); err != nil {
				return err
			}

			conv, err := a.findConversation(cmd, id)
			if err != nil {
				return err
			}

			log := observability.WithFields("cmd", "chat")
			out := &syncWriter{w: cmd.OutOrStdout()}
			view := chat.NewView(chat.ManagerConfig{
				BaseURL: a.cfg.WSURL,
				Dialer:  a.dialer,
				Logger:  log,
			}, a.sess, func(e chat.Entry) {
				out.println(render.Entry(e, width))
			})
			defer view.Close()

			selfID := a.sess.UserID()
			history := make([]chat.Entry, 0, len(conv.History))
			for _, m := range conv.History {
				history = append(history, chat.Entry{Message: m, Side: m.SideFor(selfID)})
			}
			out.println(render.ChatHeader(conv, "connecting"))
			out.println(render.Transcript(history, width))

			if err := view.Select(ctx, conv); err != nil {
				// The transcript stays usable; sends report the connection instead.
				log.Warn("chat channel unavailable", "conversation", conv.ID, "err", err)
				out.println(render.Error(chat.ErrCannotSend.UserMessage()))
			}

			lines := readLines(ctx, cmd.InOrStdin())
			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok || line == quitCommand {
						return nil
					}
					if line == "" {
						continue
					}
					if err := view.Send(line); err != nil {
						out.println(render.Error(apierr.Message(err)))
					}
				}
			}
		},
	}
	cmd.Flags().IntVar(&width, "width", render.DefaultWidth, "transcript width in columns")
	return cmd
}

func (a *app) findConversation(cmd *cobra.Command, id int) (chat.Conversation, error) {
	convs, err := a.client.ChatConversations(cmd.Context(), a.sess.UserID())
	if err != nil {
		return chat.Conversation{}, errors.New(apierr.Message(err))
	}
	for _, c := range convs {
		if c.ID == id {
			return c, nil
		}
	}
	return chat.Conversation{}, fmt.Errorf("no accepted chat for grievance #%d", id)
}

// syncWriter serializes output from the channel reader and the input loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) println(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, strings.TrimRight(text, "\n"))
}
