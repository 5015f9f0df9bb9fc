package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"budgetbuddy/internal/identity"
	"budgetbuddy/internal/session"
)

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Sign in and print an API access token",
	Long:  "Sign in and print an API access token. The password is read from BUDGETBUDDY_PASSWORD or --password.",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogin,
}

var registerCmd = &cobra.Command{
	Use:   "register <email>",
	Short: "Create an account and print an API access token",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegister,
}

var flagPassword string

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVar(&flagPassword, "password", "", "Account password (prefer BUDGETBUDDY_PASSWORD)")
		rootCmd.AddCommand(c)
	}
}

func password() (string, error) {
	if flagPassword != "" {
		return flagPassword, nil
	}
	if p := os.Getenv("BUDGETBUDDY_PASSWORD"); p != "" {
		return p, nil
	}
	return "", errors.New("no password: set BUDGETBUDDY_PASSWORD or pass --password")
}

func runLogin(cmd *cobra.Command, args []string) error {
	return withGateway(cmd, func(g *session.Gateway, pw string) {
		g.Login(cmd.Context(), args[0], pw)
	})
}

func runRegister(cmd *cobra.Command, args []string) error {
	return withGateway(cmd, func(g *session.Gateway, pw string) {
		g.Register(cmd.Context(), args[0], pw)
	})
}

// withGateway runs action against a fresh session and, when it leaves the
// session signed in, prints a token for the signed-in user.
func withGateway(cmd *cobra.Command, action func(*session.Gateway, string)) error {
	ctx := cmd.Context()
	if err := appConfig.Validate(); err != nil {
		return err
	}
	pw, err := password()
	if err != nil {
		return err
	}
	res, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer res.Cleanup()

	dir := identity.NewDirectory(res.Store, identity.WithDirectoryLogger(logger))
	g := session.NewGateway(ctx, identity.NewSession(dir), session.WithLogger(logger))
	action(g, pw)

	if !g.LoggedIn().Value() {
		return errors.New("not signed in, see logs for the reason")
	}
	u, _ := g.CurrentUser(ctx)
	tok, err := identity.NewTokenManager(appConfig.JWTSecret, appConfig.JWTIssuer, appConfig.AccessTokenTTL, res.Store).Issue(*u)
	if err != nil {
		return err
	}
	if flagJSON {
		fmt.Printf("{\"userId\":%q,\"token\":%q}\n", u.ID, tok.Token)
		return nil
	}
	fmt.Printf("User:    %s (%s)\nExpires: %s\nToken:   %s\n", u.Email, u.ID, tok.ExpiresAt.Format("2006-01-02 15:04"), tok.Token)
	return nil
}
