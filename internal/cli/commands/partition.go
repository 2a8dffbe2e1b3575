package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/entitycore/internal/catalog"
	"github.com/conduit-lang/entitycore/internal/cli/ui"
	"github.com/conduit-lang/entitycore/internal/orm/session"
)

// NewPartitionCommand creates the partition command
func NewPartitionCommand(opts *globalOptions) *cobra.Command {
	var (
		write string
		read  []string
		name  string
		email string
	)

	cmd := &cobra.Command{
		Use:   "partition",
		Short: "Save a customer in one partition and count it from others",
		Long: `Create a customer with one order under the --write partition, save it,
then count customers and orders as seen from each --read partition. Only the
partition the customer was written to sees it.`,
		Example: `  entitycore partition --write 12345 --read 12345 --read 12346`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.setup(cmd.ErrOrStderr()); err != nil {
				return err
			}
			if write == "" {
				write = opts.cfg.Partition
			}
			if write == "" {
				return fmt.Errorf("no partition: pass --write or set partition in the config")
			}
			if len(read) == 0 {
				read = []string{write}
			}

			ctx := cmd.Context()
			reg, _, err := opts.registry()
			if err != nil {
				return err
			}
			st, err := openStore(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			writer := session.New(reg, st, session.WithPartition(write), session.WithLogger(opts.logger))
			for _, e := range catalog.NewCustomer(name, email, []float64{19.99, 5}) {
				if err := writer.Add(e); err != nil {
					return err
				}
			}
			saved, err := writer.SaveChanges(ctx)
			if err != nil {
				return err
			}
			ui.Success(cmd.OutOrStdout(), opts.noColor, "saved %d documents to partition %s", saved, write)

			table := ui.NewTable(cmd.OutOrStdout(), opts.noColor, "PARTITION", "CUSTOMERS", "ORDERS")
			for _, p := range read {
				reader := session.New(reg, st, session.WithPartition(p), session.WithLogger(opts.logger))
				customers, err := session.Query[*catalog.Customer](reader).Count(ctx)
				if err != nil {
					return err
				}
				orders, err := session.Query[*catalog.Order](reader).Count(ctx)
				if err != nil {
					return err
				}
				table.AddRow(p, fmt.Sprint(customers), fmt.Sprint(orders))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&write, "write", "", "partition to create the customer in (default: config partition)")
	cmd.Flags().StringSliceVar(&read, "read", nil, "partitions to count from (default: the write partition)")
	cmd.Flags().StringVar(&name, "name", "Acme", "customer name")
	cmd.Flags().StringVar(&email, "email", "ops@acme.test", "customer email")

	return cmd
}
