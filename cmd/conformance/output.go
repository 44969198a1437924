package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/sequence"
)

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

func writeReport(w io.Writer, report *models.RunReport, format string) error {
	if format == "json" {
		return writeJSON(w, report)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Run %s\ttarget %s\tstatus %s\n", report.RunID, report.TargetID, strings.ToUpper(string(report.Status)))

	for _, sequenceReport := range report.Sequences {
		fmt.Fprintf(tw, "\n%s\t%s\t%s\n", sequenceReport.Title, strings.ToUpper(string(sequenceReport.Status)), summaryLine(sequenceReport.Summary))

		for _, result := range sequenceReport.Results {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", result.TestID, result.Outcome, result.Name, result.Message)
		}
	}

	fmt.Fprintf(tw, "\nTotal\t%s\n", summaryLine(report.Summary))

	return tw.Flush()
}

func summaryLine(summary models.Summary) string {
	return fmt.Sprintf("%d tests: %d pass, %d fail, %d error, %d skip, %d omit",
		summary.Total, summary.Pass, summary.Fail, summary.Error, summary.Skip, summary.Omit)
}

// writeSequences lists definitions. profiles holds the registered profile URLs; the text
// listing flags sequences whose conformance test has no schema to validate against.
func writeSequences(w io.Writer, definitions []*sequence.Definition, profiles []string, format string) error {
	if format == "json" {
		return writeJSON(w, definitions)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	for _, definition := range definitions {
		var notes []string
		if definition.Delayed {
			notes = append(notes, "delayed after "+strings.Join(definition.DependsOn, ","))
		}

		if definition.RequiresToken {
			notes = append(notes, "requires token")
		}

		notes = append(notes, "supports "+strings.Join(definition.ConformanceSupports, ","))

		if spec, ok := definition.Test("profile_conformance"); ok && spec.Link != "" && !slices.Contains(profiles, spec.Link) {
			notes = append(notes, "profile not loaded")
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\n", definition.EntityType, definition.Title, strings.Join(notes, "; "))

		for _, spec := range definition.Tests {
			optional := ""
			if spec.Optional {
				optional = "optional"
			}

			fmt.Fprintf(tw, "  %s\t%s\t%s\n", definition.FullTestID(spec), spec.Name, optional)
		}
	}

	return tw.Flush()
}
