package cli

import (
	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated Dataverse identity",
	Long:  `Call the WhoAmI function and print the caller's user, business unit and organisation ids.`,
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	who, err := client.WhoAmI(cmd.Context())
	if err != nil {
		return err
	}

	cmd.Println(titleStyle.Render(client.EnvironmentURL()))
	printKV(cmd.OutOrStdout(), [][2]string{
		{"User id", who.UserID},
		{"Business unit id", who.BusinessUnitID},
		{"Organisation id", who.OrganizationID},
	})

	return nil
}
