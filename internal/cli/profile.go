package cli

import (
	"github.com/spf13/cobra"

	"github.com/meridianworks/go-dataverse/internal/store"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage environment profiles",
	Long: `Profiles name a Dataverse environment and its non-secret connection
settings. Secrets (client secret, password) stay in the config file or
DATAVERSE_* environment variables.`,
}

var profileAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add or update a profile",
	Long: `Add a profile, or update it if the name already exists.

Examples:
  dvcli profile add prod --env-url https://contoso.crm.dynamics.com \
    --tenant-id 11111111-2222-3333-4444-555555555555 \
    --client-id 66666666-7777-8888-9999-000000000000 \
    --auth-mode clientcredentials`,
	Args: cobra.ExactArgs(1),
	RunE: runProfileAdd,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfileList,
}

var profileUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Set the active profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileUse,
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a profile and its cached token",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileRemove,
}

// Flags for profile add.
var (
	profileEnvURL     string
	profileAPIVersion string
	profileTenantID   string
	profileClientID   string
	profileUsername   string
	profileAuthMode   string
)

func init() {
	profileAddCmd.Flags().StringVar(&profileEnvURL, "env-url", "", "Dataverse environment URL (required)")
	profileAddCmd.Flags().StringVar(&profileAPIVersion, "api-version", "", "Web API version")
	profileAddCmd.Flags().StringVar(&profileTenantID, "tenant-id", "", "Entra ID tenant id")
	profileAddCmd.Flags().StringVar(&profileClientID, "client-id", "", "app registration client id")
	profileAddCmd.Flags().StringVar(&profileUsername, "username", "", "user email for password auth")
	profileAddCmd.Flags().StringVar(&profileAuthMode, "auth-mode", "", "clientcredentials, password or token")
	_ = profileAddCmd.MarkFlagRequired("env-url")

	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileUseCmd)
	profileCmd.AddCommand(profileRemoveCmd)
	rootCmd.AddCommand(profileCmd)
}

func runProfileAdd(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	profile := &store.Profile{
		Name:           args[0],
		EnvironmentURL: profileEnvURL,
		APIVersion:     profileAPIVersion,
		TenantID:       profileTenantID,
		ClientID:       profileClientID,
		Username:       profileUsername,
		AuthMode:       profileAuthMode,
	}
	if existing, err := st.GetProfile(args[0]); err == nil {
		profile.ID = existing.ID
	}

	if err := st.SaveProfile(profile); err != nil {
		return err
	}

	cmd.Println(okStyle.Render("saved profile"), profile.Name)
	return nil
}

func runProfileList(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	profiles, err := st.ListProfiles()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		cmd.Println("No profiles configured. Add one with 'dvcli profile add'.")
		return nil
	}

	for _, p := range profiles {
		marker := " "
		if p.Active {
			marker = okStyle.Render("*")
		}
		cmd.Printf("%s %s\n", marker, titleStyle.Render(p.Name))
		printKV(cmd.OutOrStdout(), [][2]string{
			{"  Environment", p.EnvironmentURL},
			{"  Auth mode", orDash(p.AuthMode)},
		})
	}

	return nil
}

func runProfileUse(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetActive(args[0]); err != nil {
		return err
	}

	cmd.Println(okStyle.Render("active profile"), args[0])
	return nil
}

func runProfileRemove(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteProfile(args[0]); err != nil {
		return err
	}

	cmd.Println(okStyle.Render("removed profile"), args[0])
	return nil
}

// orDash substitutes a dash for empty values in listings.
func orDash(s string) string {
	if s == "" {
		return dimStyle.Render("-")
	}
	return s
}
