package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"staylink/internal/api"
	"staylink/internal/models"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and keep the session for later runs",
	Long: `Log in with email and password.

The password is read from --password, then STAY_PASSWORD, then stdin.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := loginPassword
		if password == "" {
			password = os.Getenv("STAY_PASSWORD")
		}
		if password == "" {
			fmt.Fprint(os.Stderr, "Password: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimSpace(line)
		}

		resp, err := app.client.Login(cmd.Context(), models.LoginRequest{
			Email:    loginEmail,
			Password: password,
		})
		if err != nil {
			return err
		}
		return render(resp, func(w io.Writer) {
			fmt.Fprintf(w, "Logged in as %s (%s)\n", resp.Nickname, resp.UserID)
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget local state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.client.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok := app.session.Identity()
		if !ok {
			app.hint.show()
			return api.ErrLoginRequired
		}
		return render(id, func(w io.Writer) {
			fmt.Fprintf(w, "User ID:\t%s\n", id.UserID)
			fmt.Fprintf(w, "Name:\t%s\n", id.Name)
		})
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password")
	_ = loginCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}
