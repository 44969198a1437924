package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dukex/conformance/pkg/cmd"
	"github.com/dukex/conformance/pkg/sequence"
)

func SequencesCommand() *cli.Command {
	return &cli.Command{
		Name:    "sequences",
		Aliases: []string{"ls"},
		Usage:   "List the available sequences and their tests",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "entities-file",
				Usage:   "JSON entity table replacing the built-in one",
				Sources: cli.EnvVars("ENTITIES_FILE"),
			},
			&cli.StringFlag{
				Name:    "profiles-path",
				Usage:   "Directory of additional profile schemas",
				Sources: cli.EnvVars("PROFILES_PATH"),
			},
			&cli.StringSliceFlag{
				Name:    "entity",
				Aliases: []string{"e"},
				Usage:   "Entity types to list (all when omitted)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Listing format (text, json)",
				Value:   "text",
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			s, err := cmd.NewSuite(command.String("entities-file"))
			if err != nil {
				return err
			}

			profiles, err := cmd.NewProfiles(slog.Default(), command.String("profiles-path"))
			if err != nil {
				return err
			}

			definitions := s.Definitions()

			if entityTypes := command.StringSlice("entity"); len(entityTypes) > 0 {
				definitions = make([]*sequence.Definition, 0, len(entityTypes))

				for _, entityType := range entityTypes {
					definition, ok := s.Definition(entityType)
					if !ok {
						return fmt.Errorf("unknown entity type %q", entityType)
					}

					definitions = append(definitions, definition)
				}
			}

			return writeSequences(os.Stdout, definitions, profiles.Profiles(), command.String("output"))
		},
	}
}
