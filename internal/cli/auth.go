package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"grievance-chat/internal/apierr"
	"grievance-chat/internal/session"
)

func newLoginCmd(a *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("password is required (flag --password or first line of stdin)")
				}
				password = strings.TrimRight(line, "\r\n")
			}

			pair, err := a.client.Login(ctx, username, password)
			if err != nil {
				return errors.New(apierr.Message(err))
			}
			user, err := a.sess.Login(ctx, session.Tokens{Access: pair.Access, Refresh: pair.Refresh})
			if err != nil {
				return err
			}

			// The profile endpoint carries fields the token does not, like the avatar.
			if me, err := a.client.Me(ctx); err == nil {
				_ = a.sess.UpdateUser(ctx, session.User{
					Username: me.Username, Name: me.Name, ProfileImage: me.ProfileImage,
				})
				user = a.sess.User()
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", displayName(user), user.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "admission number or staff username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password; read from stdin when omitted")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.sess.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.authorize(ctx); err != nil {
				return err
			}
			if refresh {
				me, err := a.client.Me(ctx)
				if err != nil {
					return errors.New(apierr.Message(err))
				}
				if err := a.sess.UpdateUser(ctx, session.User{Username: me.Username, Name: me.Name, ProfileImage: me.ProfileImage}); err != nil {
					return err
				}
			}

			u := a.sess.User()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", displayName(u), u.Username)
			fmt.Fprintf(out, "id: %d\nrole: %s\n", u.ID, u.Role)
			if a.sess.Privileged() {
				fmt.Fprintln(out, "staff: yes")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload the profile from the portal")
	return cmd
}

func displayName(u session.User) string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	if u.Username != "" {
		return u.Username
	}
	return "Unknown"
}
