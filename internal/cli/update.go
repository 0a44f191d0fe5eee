package cli

import (
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update [entity-set]",
	Short: "Update a record",
	Long: `Apply a partial update to an existing record.

Only the attributes present in the payload are changed. The update fails
with a not-found error if the record does not exist.

Examples:
  dvcli update leads --id 8d68aa16-03a8-ee11-be37-000d3a1b2c3d --data '{"subject": "Follow up"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

// Flags for update.
var (
	updateID   string
	updateData string
)

func init() {
	updateCmd.Flags().StringVar(&updateID, "id", "", "record id (GUID, required)")
	updateCmd.Flags().StringVarP(&updateData, "data", "d", "", "JSON payload, or @path to a JSON file (required)")
	_ = updateCmd.MarkFlagRequired("id")
	_ = updateCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	payload, err := parsePayload(updateData)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	if err := client.Update(cmd.Context(), args[0], updateID, payload); err != nil {
		return err
	}

	cmd.Println(okStyle.Render("updated"), updateID)
	return nil
}
