package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivebackup/internal/auth"
	"github.com/tonimelisma/drivebackup/internal/config"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the configured provider using device code flow",
		Long: `Authenticate with Google Drive or OneDrive (see --provider) using the
OAuth2 device code flow. The token is saved in the data directory with
owner-only permissions and refreshed automatically afterwards.

Google Drive requires your own OAuth client: set client_id and client_secret
in the [gdrive] section of the config file.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved token for the configured provider",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	provider := auth.Provider(cc.Cfg.Provider)
	tokenPath := config.TokenPath(cc.Cfg.Provider)

	_, err := auth.Login(ctx, provider, credentials(cc.Cfg), tokenPath, func(da auth.DeviceAuth) {
		// Device code prompts stay visible under --quiet.
		fmt.Fprintf(os.Stderr, "To sign in, visit: %s\n", da.VerificationURI)
		fmt.Fprintf(os.Stderr, "Enter code: %s\n", da.UserCode)
	}, cc.Logger)
	if err != nil {
		return err
	}

	cc.Statusf("Logged in to %s.\n", provider)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := auth.Logout(config.TokenPath(cc.Cfg.Provider), cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Logged out of %s.\n", cc.Cfg.Provider)

	return nil
}
