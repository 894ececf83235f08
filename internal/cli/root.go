// Package cli is the grievance-chat terminal front end.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"grievance-chat/internal/config"
)

func Execute(ctx context.Context) error {
	rootCmd, cleanup := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	return errors.Join(err, cleanup())
}

// newRootCmd returns the command tree and a cleanup that releases whatever
// the run wired (redis connections, the metrics listener).
func newRootCmd() (*cobra.Command, func() error) {
	v := config.New()
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "grievance-chat",
		Short:         "Realtime chat and notifications for the grievance portal",
		Long:          "grievance-chat signs in to the grievance portal, lists accepted chats, joins a conversation over a websocket and streams portal notifications from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.wire(cmd.Context(), v)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("api-url", "", "portal base URL (default http://localhost:8000)")
	flags.String("ws-url", "", "websocket base URL, derived from --api-url when empty")
	flags.String("profile", "", "session profile name")
	flags.String("session-backend", "", "where the login is kept: file, memory or redis")
	flags.String("session-file", "", "session file path for the file backend")
	flags.String("redis-addr", "", "redis address for the redis backend")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.Int("notify-queue-size", 0, "recent notifications kept in memory")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
	if err := config.BindFlags(v, flags); err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd, a.close
	}

	rootCmd.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newConversationsCmd(a),
		newChatCmd(a),
		newNotificationsCmd(a),
		newGrievancesCmd(a),
		newUsersCmd(a),
		newPasswordCmd(a),
		newAssistantCmd(a),
	)

	return rootCmd, a.close
}
