package cli

import (
	"github.com/spf13/cobra"

	"github.com/meridianworks/go-dataverse/dataverse"
)

var createCmd = &cobra.Command{
	Use:   "create [entity-set]",
	Short: "Create a record",
	Long: `Create a record in an entity set from a JSON payload.

Examples:
  dvcli create leads --data '{"subject": "New enquiry", "lastname": "Doe"}'
  dvcli create contacts --data @contact.json --return`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

// Flags for create.
var (
	createData   string
	createReturn bool
)

func init() {
	createCmd.Flags().StringVarP(&createData, "data", "d", "", "JSON payload, or @path to a JSON file (required)")
	createCmd.Flags().BoolVar(&createReturn, "return", false, "print the stored record instead of just its id")
	_ = createCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	payload, err := parsePayload(createData)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	entitySet := args[0]
	ctx := cmd.Context()

	if createReturn {
		record, err := client.CreateAndReturn(ctx, entitySet, payload, &dataverse.QueryOptions{})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), record)
	}

	id, err := client.Create(ctx, entitySet, payload)
	if err != nil {
		return err
	}

	cmd.Println(id)
	return nil
}
