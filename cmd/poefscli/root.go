package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/poe-tool-dev/ggpkfs/pkg/datschema"
	"github.com/poe-tool-dev/ggpkfs/pkg/poefs"
	"github.com/poe-tool-dev/ggpkfs/pkg/poesource"
)

// cliState holds the resources built once in PersistentPreRunE and shared
// by every subcommand.
type cliState struct {
	fs     *poefs.PoeFS
	schema *datschema.Schema // nil when --online (no dat export support without a schema)
}

type rootFlags struct {
	ggpkPath   string
	schemaPath string
	online     bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	state := &cliState{}

	root := &cobra.Command{
		Use:           "poefscli",
		Short:         "Read-only access to the game's GGPK/bundle asset archive",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			return state.init(flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.ggpkPath, "ggpk", "", "path to a local GGPK file (requires --schema-path)")
	root.PersistentFlags().StringVar(&flags.schemaPath, "schema-path", "", "path to schema.min.json, required with --ggpk")
	root.PersistentFlags().BoolVar(&flags.online, "online", false, "fetch files from the patch CDN instead of a local GGPK")

	root.AddCommand(newGetCmd(state), newListPathsCmd(state))
	return root
}

// setupLogging installs a colorized slog handler over stderr, matching
// the rest of the module's structured-logging discipline.
func setupLogging() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo})))
}

// init validates the mutually-exclusive --ggpk/--online flags, then builds
// the PoeFS instance and (for --ggpk) the dat schema every Get call needs.
func (s *cliState) init(flags *rootFlags) error {
	if flags.ggpkPath == "" && !flags.online {
		return fmt.Errorf("exactly one of --ggpk or --online is required")
	}
	if flags.ggpkPath != "" && flags.online {
		return fmt.Errorf("--ggpk and --online are mutually exclusive")
	}
	if flags.ggpkPath != "" && flags.schemaPath == "" {
		return fmt.Errorf("--ggpk requires --schema-path")
	}

	var source poesource.FileSource
	if flags.ggpkPath != "" {
		local, err := poesource.OpenLocal(flags.ggpkPath)
		if err != nil {
			return fmt.Errorf("open %s: %w", flags.ggpkPath, err)
		}
		source = local

		schemaBytes, err := os.ReadFile(flags.schemaPath)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", flags.schemaPath, err)
		}
		schema, err := datschema.Parse(schemaBytes)
		if err != nil {
			return fmt.Errorf("parse schema %s: %w", flags.schemaPath, err)
		}
		s.schema = schema
	} else {
		source = poesource.NewOnline("", http.DefaultClient)
	}

	fs, err := poefs.New(source, slog.Default())
	if err != nil {
		return fmt.Errorf("initialize poefs: %w", err)
	}
	s.fs = fs
	return nil
}
