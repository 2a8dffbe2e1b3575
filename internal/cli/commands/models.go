package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/entitycore/internal/cli/ui"
	"github.com/conduit-lang/entitycore/internal/orm/metadata"
)

// unknownEntityError is returned for entity names that have no model
type unknownEntityError struct {
	name        string
	suggestions []string
}

func (e *unknownEntityError) Error() string {
	return fmt.Sprintf("unknown entity %q", e.name)
}

// NewModelsCommand creates the models command
func NewModelsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models [entity]",
		Short: "Describe the registered entity models",
		Long: `Without arguments, list every registered entity model with its key,
partition field and counts. With an entity name, show the full model:
persisted fields, indexes, calculated properties, relationships, lookups and
drill-downs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.setup(cmd.ErrOrStderr()); err != nil {
				return err
			}
			_, models, err := opts.registry()
			if err != nil {
				return err
			}

			if len(args) == 0 {
				renderModelTable(cmd, opts, models)
				return nil
			}

			names := make([]string, len(models))
			for i, m := range models {
				names[i] = m.Name()
				if strings.EqualFold(m.Name(), args[0]) {
					renderModel(cmd, opts, m)
					return nil
				}
			}
			return &unknownEntityError{name: args[0], suggestions: ui.Suggest(args[0], names, 3)}
		},
	}
}

func renderModelTable(cmd *cobra.Command, opts *globalOptions, models []*metadata.EntityModel) {
	table := ui.NewTable(cmd.OutOrStdout(), opts.noColor,
		"ENTITY", "KEY", "PARTITION", "FIELDS", "CALCULATED", "RELATIONSHIPS")
	for _, m := range models {
		table.AddRow(
			m.Name(),
			strings.Join(m.PrimaryKey(), ", "),
			orDash(m.PartitionField()),
			fmt.Sprint(len(m.PersistedFields())),
			fmt.Sprint(len(m.CalculatedProperties())),
			fmt.Sprint(len(m.Relationships())),
		)
	}
	table.Render()
}

func renderModel(cmd *cobra.Command, opts *globalOptions, m *metadata.EntityModel) {
	details := ui.NewDetails(cmd.OutOrStdout(), m.Name(), opts.noColor)
	details.Add("Key", orDash(strings.Join(m.PrimaryKey(), ", ")))
	details.Add("Partition", orDash(m.PartitionField()))
	details.Add("Fields", strings.Join(m.PersistedFields(), ", "))

	for _, idx := range m.Indexes() {
		kind := "Index"
		if idx.Unique {
			kind = "Unique"
		}
		details.Add(kind, strings.Join(idx.Fields, ", "))
	}

	for _, p := range m.CalculatedProperties() {
		desc := "calculated"
		if p.Calculation().Parameterized() {
			desc = "calculated, parameterized"
		}
		details.Add(p.Name, desc)
	}

	for _, rel := range m.Relationships() {
		details.Add("Relationship", fmt.Sprintf("%s (on delete %s)", rel, rel.OnDelete))
	}

	var lookups []string
	for _, p := range m.Properties() {
		if l := p.Lookup(); l != nil {
			lookups = append(lookups, fmt.Sprintf("%s -> %s [%s]", p.Name, l.Target.Name(), l.ValueSelector))
		}
		if d := p.DrillDown(); d != nil {
			lookups = append(lookups, fmt.Sprintf("%s => %s", p.Name, d.Target.Name()))
		}
	}
	sort.Strings(lookups)
	for _, l := range lookups {
		details.Add("Navigation", l)
	}

	details.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
