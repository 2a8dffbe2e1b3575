package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/entitycore/internal/catalog"
	"github.com/conduit-lang/entitycore/internal/cli/ui"
	"github.com/conduit-lang/entitycore/internal/orm/expr"
	"github.com/conduit-lang/entitycore/internal/orm/metadata"
	"github.com/conduit-lang/entitycore/internal/orm/query"
	"github.com/conduit-lang/entitycore/internal/orm/session"
	"github.com/conduit-lang/entitycore/internal/orm/store"
)

// openSession opens the configured store and a session confined to
// partition, or to the config partition when it is empty
func openSession(cmd *cobra.Command, opts *globalOptions, partition string) (*session.Session, store.Store, error) {
	if err := opts.setup(cmd.ErrOrStderr()); err != nil {
		return nil, nil, err
	}
	if partition == "" {
		partition = opts.cfg.Partition
	}

	reg, _, err := opts.registry()
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore(cmd.Context(), opts.cfg, opts.logger)
	if err != nil {
		return nil, nil, err
	}

	sessionOpts := []session.Option{session.WithLogger(opts.logger)}
	if partition != "" {
		sessionOpts = append(sessionOpts, session.WithPartition(partition))
	}
	return session.New(reg, st, sessionOpts...), st, nil
}

// NewCustomersCommand creates the customers command
func NewCustomersCommand(opts *globalOptions) *cobra.Command {
	var partition, name string

	cmd := &cobra.Command{
		Use:   "customers",
		Short: "List the customers of a partition with their order counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, st, err := openSession(cmd, opts, partition)
			if err != nil {
				return err
			}
			defer st.Close()

			q := session.Query[*catalog.Customer](s)
			if name != "" {
				q = session.Filter(s, q, expr.LambdaOf[*catalog.Customer]("c", func(c expr.Node) expr.Node {
					return expr.Contains(expr.Field(c, "Name"), expr.Const(name))
				}))
			}
			q, err = query.AutoCalculate(q, s.Registry(), []string{"OrderCount"}, false)
			if err != nil {
				return err
			}

			rows, err := q.ToSlice(cmd.Context())
			if err != nil {
				return err
			}

			table := ui.NewTable(cmd.OutOrStdout(), opts.noColor, "ID", "PARTITION", "NAME", "EMAIL", "ORDERS")
			for _, c := range rows {
				table.AddRow(c.ID.String(), c.DataArea, c.Name, c.Email, fmt.Sprint(c.OrderCount))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&partition, "partition", "p", "", "partition to list (default: config partition)")
	cmd.Flags().StringVar(&name, "name", "", "only customers whose name contains this text")
	return cmd
}

// NewOrdersCommand creates the orders command
func NewOrdersCommand(opts *globalOptions) *cobra.Command {
	var partition, status string

	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List orders with line counts and totals",
		Long: `List the orders of a partition. Totals honor the calculate.values
section of the config, e.g. min_amount leaves out smaller lines. --status
keeps the orders with that status code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, st, err := openSession(cmd, opts, partition)
			if err != nil {
				return err
			}
			defer st.Close()

			q := session.Query[*catalog.Order](s)
			if status != "" {
				q = query.WithScope(q, catalog.Scopes(), "status", status)
			}

			values := metadata.NewFilterValues(opts.cfg.Calculate.Values)
			q, err = query.AutoCalculate(q, s.Registry(),
				[]string{"LineCount", "Total"}, true, query.WithFilterValues(values))
			if err != nil {
				return err
			}

			rows, err := q.ToSlice(cmd.Context())
			if err != nil {
				return err
			}

			table := ui.NewTable(cmd.OutOrStdout(), opts.noColor, "ID", "CUSTOMER", "STATUS", "LINES", "TOTAL")
			for _, o := range rows {
				table.AddRow(o.ID.String(), o.CustomerID.String(), o.Status,
					fmt.Sprint(o.LineCount), fmt.Sprintf("%.2f", o.Total))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&partition, "partition", "p", "", "partition to list (default: config partition)")
	cmd.Flags().StringVar(&status, "status", "", "only orders with this status (open, shipped, cancelled)")
	return cmd
}
