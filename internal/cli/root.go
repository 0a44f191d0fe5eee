// Package cli implements the dvcli command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/meridianworks/go-dataverse/internal/logger"
)

var (
	// Version is set by goreleaser ldflags.
	version = "dev"

	// Verbose enables debug logging.
	verbose bool

	// Persistent connection flags. Empty values defer to the config file,
	// environment variables and the active profile.
	flagConfigPath string
	flagProfile    string
	flagEnvURL     string
	flagAPIVersion string
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "dvcli",
	Short: "Query and manage Microsoft Dataverse (Dynamics 365) records",
	Long: `dvcli talks to the Dataverse Web API of a Dynamics 365 environment.

It authenticates against Microsoft Entra ID with client credentials,
a username and password, or a pre-acquired access token, and exposes
entity sets (leads, contacts, accounts, ...) as get/create/update/delete
operations.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string for the CLI.
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose debug output")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to config file (default ~/.dvcli/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "environment profile to use (see 'dvcli profile list')")
	rootCmd.PersistentFlags().StringVar(&flagEnvURL, "env-url", "", "Dataverse environment URL, e.g. https://contoso.crm.dynamics.com")
	rootCmd.PersistentFlags().StringVar(&flagAPIVersion, "api-version", "", "Web API version (default v9.2)")

	// Use PersistentPreRunE to set verbose mode before any command executes
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		return nil
	}
}
