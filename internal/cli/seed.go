package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

// SeedFile is the YAML input of the seed command.
//
//	apps:
//	  - id: /usr/share/applications/firefox.desktop
//	    props:
//	      LocalName: Firefox
//	      Icon: firefox
//	      Category: Network
//	      FirstLetterAll: F
type SeedFile struct {
	Apps []SeedApp `yaml:"apps"`
}

// SeedApp is one application in a seed file. Props use backing database
// property names.
type SeedApp struct {
	ID    string         `yaml:"id"`
	Props map[string]any `yaml:"props"`
}

// LoadSeedFile reads and validates a seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for i, app := range seed.Apps {
		if app.ID == "" {
			return nil, fmt.Errorf("apps[%d]: id is required", i)
		}
	}
	return &seed, nil
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Insert or update applications from a YAML file",
		Long: `Insert or update applications in the database from a YAML file.

Existing applications only have the listed properties updated.

Example:
  lingmo-menu seed --db ./apps.db ./apps.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := LoadSeedFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid seed file", err)
			}

			db, err := openDatabase(rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := commandContext(cmd)
			for i, app := range seed.Apps {
				props, err := appinfo.PropertyMapFromAny(app.Props)
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("apps[%d]", i), err)
				}
				if err := db.Upsert(ctx, app.ID, props); err != nil {
					return WrapExitError(ExitFailure, "failed to seed application", err)
				}
			}

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return f.Success(map[string]int{"seeded": len(seed.Apps)})
			}
			return f.Success(fmt.Sprintf("Seeded %d application(s)", len(seed.Apps)))
		},
	}
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <app-id>...",
		Short: "Remove applications from the database",
		Long: `Remove applications from the database. Unknown identifiers are ignored.

Example:
  lingmo-menu remove --db ./apps.db /usr/share/applications/firefox.desktop`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Delete(commandContext(cmd), args...); err != nil {
				return WrapExitError(ExitFailure, "failed to remove applications", err)
			}

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return f.Success(map[string][]string{"removed": args})
			}
			return f.Success(fmt.Sprintf("Removed %d application(s)", len(args)))
		},
	}
}
