package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"grievance-chat/internal/api"
	"grievance-chat/internal/apierr"
	"grievance-chat/internal/render"
)

func newGrievancesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "grievances",
		Aliases: []string{"g"},
		Short:   "List and act on grievances",
	}
	cmd.AddCommand(
		newGrievanceListCmd(a),
		&cobra.Command{
			Use:   "stats",
			Short: "Show totals by status (staff only)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := a.authorize(cmd.Context()); err != nil {
					return err
				}
				st, err := a.client.Stats(cmd.Context())
				if err != nil {
					return errors.New(apierr.Message(err))
				}
				fmt.Fprintln(cmd.OutOrStdout(), render.Stats(st))
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Show one grievance with its comments",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := a.authorize(cmd.Context()); err != nil {
					return err
				}
				g, err := a.client.Grievance(cmd.Context(), id)
				if err != nil {
					return errors.New(apierr.Message(err))
				}
				fmt.Fprintln(cmd.OutOrStdout(), render.Grievance(g))
				return nil
			},
		},
		&cobra.Command{
			Use:   "comment <id> <text>...",
			Short: "Add a comment",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := a.authorize(cmd.Context()); err != nil {
					return err
				}
				if _, err := a.client.AddComment(cmd.Context(), id, strings.Join(args[1:], " ")); err != nil {
					return errors.New(apierr.Message(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Comment added to #%d\n", id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "status <id> <SUBMITTED|IN_REVIEW|ACTION_TAKEN|RESOLVED>",
			Short: "Move a grievance through the workflow (staff only)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				status := api.Status(strings.ToUpper(args[1]))
				if !status.Valid() {
					return fmt.Errorf("unknown status %q", args[1])
				}
				if err := a.authorize(cmd.Context()); err != nil {
					return err
				}
				g, err := a.client.UpdateStatus(cmd.Context(), id, status)
				if err != nil {
					return errors.New(apierr.Message(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d is now %s\n", g.ID, g.Status)
				return nil
			},
		},
		&cobra.Command{
			Use:   "accept-chat <id>",
			Short: "Accept the chat request on a grievance (staff only)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := a.authorize(cmd.Context()); err != nil {
					return err
				}
				if err := a.client.AcceptChat(cmd.Context(), id); err != nil {
					return errors.New(apierr.Message(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Chat on #%d accepted\n", id)
				return nil
			},
		},
	)
	return cmd
}

func newGrievanceListCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible grievances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := api.StatusFilter(strings.ToLower(strings.TrimSpace(status)))
			if filter != "" && !filter.Valid() {
				return fmt.Errorf("unknown status filter %q (use %s or %s)", status, api.FilterInProgress, api.FilterResolved)
			}
			if err := a.authorize(cmd.Context()); err != nil {
				return err
			}

			var (
				list []api.Grievance
				err  error
			)
			if filter == "" {
				list, err = a.client.Grievances(cmd.Context())
			} else {
				list, err = a.client.GrievancesByStatus(cmd.Context(), filter)
			}
			if err != nil {
				return errors.New(apierr.Message(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.Grievances(list))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only in_progress or resolved grievances")
	return cmd
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(raw), "#"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
