package cli

import (
	"github.com/spf13/cobra"

	"github.com/meridianworks/go-dataverse/dataverse"
)

var getCmd = &cobra.Command{
	Use:   "get [entity-set]",
	Short: "Retrieve records from an entity set",
	Long: `Retrieve a collection of records, or a single record by id.

The entity set is the plural logical name from the Web API: leads,
contacts, accounts, opportunities, ...

Examples:
  # First page of leads
  dvcli get leads

  # A single lead
  dvcli get leads --id 8d68aa16-03a8-ee11-be37-000d3a1b2c3d

  # Filtered and trimmed
  dvcli get contacts --select fullname,emailaddress1 --filter "statecode eq 0" --top 10

  # Every record, following pagination
  dvcli get accounts --all`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

// Flags for get.
var (
	getID      string
	getSelect  []string
	getFilter  string
	getOrderBy []string
	getExpand  []string
	getTop     int
	getCount   bool
	getAll     bool
)

func init() {
	getCmd.Flags().StringVar(&getID, "id", "", "record id (GUID); returns a single record")
	getCmd.Flags().StringSliceVar(&getSelect, "select", nil, "attributes to return ($select)")
	getCmd.Flags().StringVar(&getFilter, "filter", "", "OData filter expression ($filter)")
	getCmd.Flags().StringSliceVar(&getOrderBy, "order-by", nil, "sort order, e.g. 'createdon desc' ($orderby)")
	getCmd.Flags().StringSliceVar(&getExpand, "expand", nil, "related records to include ($expand)")
	getCmd.Flags().IntVar(&getTop, "top", 0, "maximum number of records ($top)")
	getCmd.Flags().BoolVar(&getCount, "count", false, "include the total record count ($count)")
	getCmd.Flags().BoolVar(&getAll, "all", false, "follow pagination and return every record")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	entitySet := args[0]
	opts := &dataverse.QueryOptions{
		Select:  getSelect,
		Filter:  getFilter,
		OrderBy: getOrderBy,
		Expand:  getExpand,
		Top:     getTop,
		Count:   getCount,
	}

	ctx := cmd.Context()

	if getID != "" {
		record, err := client.Get(ctx, entitySet, getID, opts)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), record)
	}

	if getAll {
		records, err := client.ListAll(ctx, entitySet, opts)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), records)
	}

	page, err := client.List(ctx, entitySet, opts)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), page.Value); err != nil {
		return err
	}
	if page.Count != nil {
		cmd.PrintErrln(dimStyle.Render("total count:"), *page.Count)
	}
	if page.HasMore() {
		cmd.PrintErrln(warnStyle.Render("more records available; use --all to fetch every page"))
	}

	return nil
}
