package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/daredrop/pkg/formatter"
	"github.com/zfogg/daredrop/pkg/output"
	"github.com/zfogg/daredrop/pkg/prompter"
)

var loginEmail string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Sign in to DareDrop and manage the stored session",
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		email := loginEmail
		if email == "" {
			if email, err = prompter.PromptString("Email"); err != nil {
				return err
			}
		}
		password, err := prompter.PromptPassword("Password")
		if err != nil {
			return err
		}

		sess, err := a.sessions.SignIn(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		formatter.PrintSuccess("Signed in as %s", sess.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.sessions.SignOut(cmd.Context()); err != nil {
			return err
		}
		formatter.PrintSuccess("Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		sess := a.deps.Session
		return output.PrintRecord("Session", map[string]interface{}{
			"user_id":    sess.UserID,
			"email":      sess.Email,
			"expires_in": formatter.TimeLeft(sess.ExpiresAt, time.Now()),
		})
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email (prompted when omitted)")

	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(whoamiCmd)
}
