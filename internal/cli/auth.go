package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/meridianworks/go-dataverse/dataverse"
	"github.com/meridianworks/go-dataverse/internal/config"
	"github.com/meridianworks/go-dataverse/internal/store"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication",
	Long:  `Acquire and inspect access tokens for the configured environment.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Acquire and cache an access token",
	Long: `Acquire an access token with the configured credentials, verify it
against the environment with WhoAmI, and cache it for the selected profile.

Password-mode logins prompt for the password when it is not configured.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cached token state",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, _ []string) error {
	cfg, profile, err := resolveConfig()
	if err != nil {
		return err
	}

	mode, err := cfg.ResolveAuthMode()
	if err != nil && !errors.Is(err, config.ErrIncompleteCredentials) {
		return err
	}

	// A username without a password means password mode with a prompt.
	if cfg.Username != "" && cfg.Password == "" {
		password, err := promptPassword(cmd, cfg.Username)
		if err != nil {
			return err
		}
		cfg.Password = password
		mode = config.ModePassword
	}
	if mode == "" {
		return config.ErrIncompleteCredentials
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	provider, err := buildTokenProvider(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	token, err := provider.GetToken(ctx)
	if err != nil {
		return err
	}

	client, err := dataverse.New(cfg.EnvironmentURL, provider)
	if err != nil {
		return err
	}
	who, err := client.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("token verification failed: %w", err)
	}

	cmd.Println(okStyle.Render("logged in"), "as user", who.UserID)

	if profile == nil {
		cmd.PrintErrln(dimStyle.Render("no profile selected; token not cached"))
		return nil
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	expiresAt := time.Now().Add(cachedTokenLifetime)
	if err := st.SaveToken(profile.ID, token, expiresAt); err != nil {
		return err
	}

	cmd.Println(dimStyle.Render("token cached for profile"), profile.Name)
	return nil
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	_, profile, err := resolveConfig()
	if err != nil {
		return err
	}
	if profile == nil {
		cmd.Println("No profile selected; tokens are not cached.")
		return nil
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	_, expiresAt, err := st.Token(profile.ID)
	if errors.Is(err, store.ErrNoToken) {
		cmd.Println(warnStyle.Render("no valid cached token"), "for profile", profile.Name)
		cmd.Println("Run 'dvcli auth login' to acquire one.")
		return nil
	}
	if err != nil {
		return err
	}

	cmd.Println(okStyle.Render("valid token cached"), "for profile", profile.Name)
	printKV(cmd.OutOrStdout(), [][2]string{
		{"Expires", expiresAt.Local().Format(time.RFC1123)},
	})
	return nil
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(cmd *cobra.Command, username string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password not configured and stdin is not a terminal")
	}

	cmd.Printf("Password for %s: ", username)
	password, err := term.ReadPassword(fd)
	cmd.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	return string(password), nil
}
