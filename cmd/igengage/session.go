package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"igengage/pkg/session"
)

var forceLogin bool

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the stored login session",
	Long: `Manage the login session kept between runs.

Sessions are stored in the system keychain when one is available and
otherwise in an encrypted file under the session directory. The password
itself is never stored.`,
}

var sessionLoginCmd = &cobra.Command{
	Use:   "login [account]",
	Short: "Log in and store the session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionLogin,
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status [account]",
	Short: "Check whether the stored session is still accepted",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionStatus,
}

var sessionLogoutCmd = &cobra.Command{
	Use:   "logout [account]",
	Short: "Delete the stored session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionLogout,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLoginCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionLogoutCmd)

	sessionLoginCmd.Flags().BoolVar(&forceLogin, "force", false, "log in again even if the stored session works")
}

func sessionApp(cmd *cobra.Command, args []string) (*app, error) {
	cfg, err := loadConfig(nil)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := a.resolveAccount(cmd.Context(), args); err != nil {
		return nil, err
	}
	return a, nil
}

func runSessionLogin(cmd *cobra.Command, args []string) error {
	a, err := sessionApp(cmd, args)
	if err != nil {
		return err
	}
	defer a.close()

	return a.login(cmd.Context(), forceLogin)
}

func runSessionStatus(cmd *cobra.Command, args []string) error {
	a, err := sessionApp(cmd, args)
	if err != nil {
		return err
	}
	defer a.close()

	validity, err := a.sessions.Status(cmd.Context(), a.account)
	switch {
	case errors.Is(err, session.ErrNotFound):
		a.out.Warning(fmt.Sprintf("No stored session for @%s", a.account))
		return nil
	case err != nil:
		return fmt.Errorf("could not check session: %w", err)
	}

	a.out.Info("Account", "@"+a.account)
	a.out.Info("Session", validity.String())
	if validity == session.ValidityInvalid {
		a.out.Warning("The stored session expired. Run 'igengage session login' to replace it.")
	}
	return nil
}

func runSessionLogout(cmd *cobra.Command, args []string) error {
	a, err := sessionApp(cmd, args)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.sessions.Forget(a.account); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			a.out.Warning(fmt.Sprintf("No stored session for @%s", a.account))
			return nil
		}
		return fmt.Errorf("could not delete session: %w", err)
	}
	a.out.Success("Session removed for @" + a.account)
	return nil
}
