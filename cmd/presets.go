package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
)

// CreatePresetsCmd creates the presets command.
func CreatePresetsCmd() *cobra.Command {
	var presetsFile string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List resolution presets",
		Long: `Shows the resolution presets the node accepts over the control ` +
			`channel, either the built-in set or the contents of a presets file.`,
		Run: func(_ *cobra.Command, _ []string) {
			tbl := presets.Builtin()
			if presetsFile != "" {
				loaded, err := presets.Load(presetsFile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "failed to load presets: %v\n", err)
					os.Exit(1)
				}
				tbl = loaded
			}

			list := tbl.All()

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(list); err != nil {
					fmt.Fprintf(os.Stderr, "failed to encode presets: %v\n", err)
					os.Exit(1)
				}
				return
			}

			rows := make([][]string, 0, len(list))
			for _, p := range list {
				rows = append(rows, []string{
					p.Name,
					fmt.Sprintf("%dx%d", p.RawWidth, p.RawHeight),
					fmt.Sprintf("%dx%d", p.ImageWidth, p.ImageHeight),
					fmt.Sprintf("%dx%d", p.BandWidth(), p.BandHeight()),
					strconv.Itoa(p.FPS),
				})
			}

			fmt.Println(renderTable(
				[]string{"NAME", "RAW", "IMAGE", "BAND", "FPS"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
		},
	}

	cmd.Flags().StringVar(&presetsFile, "presets", "", "Path to presets TOML file (default: built-in set)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
