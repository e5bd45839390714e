package cmd

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/devices"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var jsonOutput bool
	var showFormats bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List V4L2 capture devices",
		Long: `Enumerates video capture devices visible to the node, with their ` +
			`stable hardware IDs and reported capabilities. Device IDs are accepted ` +
			`by the --device flag in place of /dev paths. With --formats each ` +
			`device is probed for the pixel formats, frame sizes and rates it ` +
			`advertises.`,
		Run: func(_ *cobra.Command, _ []string) {
			list, err := devices.List()
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to enumerate devices: %v\n", err)
				os.Exit(1)
			}

			if jsonOutput {
				printDevicesJSON(list, showFormats)
				return
			}

			if len(list) == 0 {
				fmt.Println("No capture devices found")
				return
			}

			rows := make([][]string, 0, len(list))
			for _, dev := range list {
				rows = append(rows, []string{
					dev.DevicePath,
					dev.DeviceName,
					dev.Driver,
					dev.DeviceID,
					strings.Join(dev.Capabilities, ", "),
				})
			}

			fmt.Println(renderTable(
				[]string{"PATH", "NAME", "DRIVER", "ID", "CAPABILITIES"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))

			if showFormats {
				for _, dev := range list {
					printDeviceFormats(dev.DevicePath)
				}
			}
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&showFormats, "formats", false, "Probe each device for supported formats and modes")

	return cmd
}

func printDevicesJSON(list []devices.DeviceInfo, withFormats bool) {
	type deviceReport struct {
		devices.DeviceInfo
		Formats []devices.FormatSupport `json:"formats,omitempty"`
	}

	reports := make([]deviceReport, len(list))
	for i, dev := range list {
		reports[i] = deviceReport{DeviceInfo: dev}
		if withFormats {
			formats, err := devices.Formats(dev.DevicePath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to probe %s: %v\n", dev.DevicePath, err)
				continue
			}
			reports[i].Formats = formats
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode devices: %v\n", err)
		os.Exit(1)
	}
}

func printDeviceFormats(devicePath string) {
	formats, err := devices.Formats(devicePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to probe %s: %v\n", devicePath, err)
		return
	}

	fmt.Printf("\n%s formats:\n", devicePath)
	if len(formats) == 0 {
		fmt.Println("  none advertised")
		return
	}
	for _, f := range formats {
		label := f.FourCC
		if f.Description != "" {
			label = fmt.Sprintf("%s (%s)", f.FourCC, f.Description)
		}
		if f.Emulated {
			label += " [emulated]"
		}
		fmt.Printf("  %s\n", label)
		for _, mode := range f.Modes {
			fmt.Printf("    %dx%d @ %s fps\n", mode.Width, mode.Height, formatFPSList(mode.FPS))
		}
	}
}

func formatFPSList(fps []float64) string {
	if len(fps) == 0 {
		return "?"
	}
	parts := make([]string, len(fps))
	for i, f := range fps {
		parts[i] = strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
	}
	return strings.Join(parts, ", ")
}
