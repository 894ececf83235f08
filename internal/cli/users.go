package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"grievance-chat/internal/api"
	"grievance-chat/internal/apierr"
	"grievance-chat/internal/render"
)

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage portal accounts (admin only, except cell-members)",
	}

	var nu api.NewUser
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an account; the password is read from stdin when omitted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !api.ValidRole(nu.Role) {
				return fmt.Errorf("unknown role %q (use %s)", nu.Role, strings.Join(api.Roles, ", "))
			}
			if nu.Password == "" {
				line, err := readSecret(bufio.NewReader(cmd.InOrStdin()))
				if err != nil {
					return errors.New("password is required (flag --password or first line of stdin)")
				}
				nu.Password = line
			}
			if err := a.authorize(cmd.Context()); err != nil {
				return err
			}
			u, err := a.client.CreateUser(cmd.Context(), nu)
			if err != nil {
				return errors.New(apierr.Message(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (#%d, %s)\n", u.Username, u.ID, u.Role)
			return nil
		},
	}
	add.Flags().StringVar(&nu.AdmissionNumber, "admission-number", "", "admission number, used as the username")
	add.Flags().StringVar(&nu.Name, "name", "", "display name")
	add.Flags().StringVar(&nu.CollegeEmail, "email", "", "college email")
	add.Flags().StringVar(&nu.Role, "role", "student", "student, grievance_cell or admin")
	add.Flags().StringVarP(&nu.Password, "password", "p", "", "initial password")
	_ = add.MarkFlagRequired("admission-number")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every account",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := a.authorize(cmd.Context()); err != nil {
					return err
				}
				users, err := a.client.Users(cmd.Context())
				if err != nil {
					return errors.New(apierr.Message(err))
				}
				fmt.Fprintln(cmd.OutOrStdout(), render.Users("Users", users))
				return nil
			},
		},
		&cobra.Command{
			Use:   "cell-members",
			Short: "List grievance cell members",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := a.authorize(cmd.Context()); err != nil {
					return err
				}
				users, err := a.client.GrievanceCellMembers(cmd.Context())
				if err != nil {
					return errors.New(apierr.Message(err))
				}
				fmt.Fprintln(cmd.OutOrStdout(), render.Users("Grievance cell", users))
				return nil
			},
		},
		&cobra.Command{
			Use:   "role <id> <student|grievance_cell|admin>",
			Short: "Change an account's role",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				role := strings.ToLower(args[1])
				if !api.ValidRole(role) {
					return fmt.Errorf("unknown role %q (use %s)", args[1], strings.Join(api.Roles, ", "))
				}
				if err := a.authorize(cmd.Context()); err != nil {
					return err
				}
				u, err := a.client.ChangeRole(cmd.Context(), id, role)
				if err != nil {
					return errors.New(apierr.Message(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", u.Username, u.Role)
				return nil
			},
		},
		add,
	)
	return cmd
}

func newPasswordCmd(a *app) *cobra.Command {
	var current, next string
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change your password; missing values are read from stdin, current first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			for _, field := range []*string{&current, &next} {
				if *field != "" {
					continue
				}
				line, err := readSecret(in)
				if err != nil {
					return errors.New("current and new password are required (flags or stdin lines)")
				}
				*field = line
			}
			if err := a.authorize(cmd.Context()); err != nil {
				return err
			}
			msg, err := a.client.ChangePassword(cmd.Context(), current, next)
			if err != nil {
				return errors.New(apierr.Message(err))
			}
			if msg == "" {
				msg = "Password updated"
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "current password")
	cmd.Flags().StringVar(&next, "new", "", "new password, at least 8 characters")
	return cmd
}

// readSecret reads one non-empty line.
func readSecret(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	return line, nil
}
