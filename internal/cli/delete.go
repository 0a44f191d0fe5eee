package cli

import (
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [entity-set]",
	Short: "Delete a record",
	Long: `Delete a record by id.

Examples:
  dvcli delete leads --id 8d68aa16-03a8-ee11-be37-000d3a1b2c3d`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

// Flags for delete.
var deleteID string

func init() {
	deleteCmd.Flags().StringVar(&deleteID, "id", "", "record id (GUID, required)")
	_ = deleteCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	if err := client.Delete(cmd.Context(), args[0], deleteID); err != nil {
		return err
	}

	cmd.Println(okStyle.Render("deleted"), deleteID)
	return nil
}
