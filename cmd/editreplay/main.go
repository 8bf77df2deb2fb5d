// Command editreplay replays a scripted editing session headlessly and
// writes the resulting features as GeoJSON.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"geo-editor/internal/app"
	"geo-editor/internal/config"
	"geo-editor/internal/version"

	"github.com/spf13/cobra"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	output     string
	input      string
	wgs84      bool
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:     "editreplay script.toml",
		Short:   "Replay a scripted editing session and export the result",
		Version: version.String(),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := LoadScript(args[0])
			if err != nil {
				return err
			}
			return run(cmd.Context(), script, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "editor configuration file")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "GeoJSON output, overrides the script")
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "GeoJSON loaded before replaying, overrides the script")
	cmd.Flags().BoolVar(&opts.wgs84, "wgs84", false, "read and write WGS84 longitude/latitude")
	return cmd
}

func run(ctx context.Context, script *Script, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if opts.output != "" {
		script.Output = opts.output
	}
	if opts.input != "" {
		script.Input = opts.input
	}
	wgs84 := script.WGS84 || opts.wgs84

	state := app.NewState(cfg, script.Width, script.Height)
	defer state.Close()

	if err := script.AddOblique(state); err != nil {
		return err
	}
	if script.Input != "" {
		if err := state.ImportGeoJSON(script.Input, wgs84); err != nil {
			return err
		}
	}
	if err := script.StartSession(state); err != nil {
		return err
	}
	if err := script.Replay(ctx, state); err != nil {
		return err
	}
	state.StopSession()

	if script.Output == "" {
		return fmt.Errorf("no output file given")
	}
	return state.ExportGeoJSON(script.Output, wgs84)
}
