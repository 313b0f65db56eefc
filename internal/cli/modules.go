// modules.go implements the "ghidracov modules" command: inspecting and
// maintaining a firmware module table.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/ghidracov/internal/model"
	"github.com/mmr-tortoise/ghidracov/internal/module"
)

// modulesFlags holds the flag values for the modules command.
type modulesFlags struct {
	fillText bool // --fill-text: compute .text info from the .debug ELFs
	write    bool // --write: save the (sorted, possibly filled) table back
	noHeader bool // --no-header: omit the header row in text output
}

// NewModulesCommand creates the "modules" cobra command.
func NewModulesCommand() *cobra.Command {
	flags := &modulesFlags{}

	cmd := &cobra.Command{
		Use:   "modules TABLE [NAME...]",
		Short: "Inspect a firmware module table",
		Long: `Print a firmware module table (image base, .text bounds, debug path
per module), optionally restricted to the named modules.

With --fill-text, the .text start/end/size columns are recomputed from
each module's .debug ELF file before printing; --write saves the updated
table back to TABLE.

Examples:
  ghidracov modules tdvf-modules.json
  ghidracov modules tdvf-modules.json SecMain DxeCore
  ghidracov modules --fill-text --write tdvf-modules.json`,

		Args: cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runModules(args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.fillText, "fill-text", false, "Recompute .text info from the .debug ELF files")
	cmd.Flags().BoolVar(&flags.write, "write", false, "Write the table back to TABLE")
	cmd.Flags().BoolVar(&flags.noHeader, "no-header", false, "Omit the header row")

	return cmd
}

// runModules loads the table, applies the requested maintenance, and
// prints it. No configuration or engine is involved: this command only
// touches the table file and the modules' .debug ELFs.
func runModules(args []string, flags *modulesFlags) error {
	tablePath := args[0]
	onlyNames := args[1:]

	table, err := module.Load(tablePath)
	if err != nil {
		return err
	}

	if flags.fillText {
		for i := range table.Modules {
			if err := table.Modules[i].FillTextInfo(); err != nil {
				return model.WrapCLIError(model.KindGeneral, "failed to fill .text info", err)
			}
			VerboseLog("Filled .text info for %s", table.Modules[i].Name)
		}
	}

	if flags.write {
		if err := table.Save(tablePath); err != nil {
			return model.WrapCLIError(model.KindGeneral,
				fmt.Sprintf("failed to write module table %s", tablePath), err)
		}
		VerboseLog("Wrote module table %s", tablePath)
	}

	if IsJSONOutput() {
		// JSON output honors the name restriction too.
		modules := table.Modules
		if len(onlyNames) > 0 {
			modules = nil
			for _, name := range onlyNames {
				m, err := table.Get(name)
				if err != nil {
					return model.WrapCLIError(model.KindPath, "unknown module", err)
				}
				modules = append(modules, *m)
			}
		}
		data, _ := json.MarshalIndent(modules, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	fmt.Print(table.Format(onlyNames, !flags.noHeader))
	return nil
}
