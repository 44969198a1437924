// Package main provides the conformance command line tool.
package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dukex/conformance/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "conformance",
		Usage:                 "Run FHIR server conformance sequences",
		EnableShellCompletion: true,
		Flags:                 logFlags(),
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			RunCommand(),
			SequencesCommand(),
			ScheduleCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("conformance").Error("command failed", "error", err)
		os.Exit(1)
	}
}
