package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maauso/mediatools-api/internal/tools"
)

func newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools [tool]",
		Short: "List tools, or show the formats and presets of one tool",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintln(out, renderToolList(tools.All()))
				return nil
			}
			def, err := tools.Lookup(tools.Tool(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderToolDetail(def))
			return nil
		},
	}
}

func renderToolList(defs []tools.Definition) string {
	rows := make([][]string, 0, len(defs))
	for _, def := range defs {
		input := string(def.Accepts)
		if len(def.Extensions) > 0 {
			input += " (" + strings.Join(def.Extensions, ", ") + ")"
		}
		output := def.DefaultFormat
		if def.Segmented {
			output = def.SegmentExt + " segments"
		}
		rows = append(rows, []string{string(def.Tool), def.Title, input, output})
	}
	return renderTable([]string{"Tool", "Title", "Input", "Output"}, rows, nil)
}

func renderToolDetail(def tools.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", def.Title, def.Description)
	if def.Segmented {
		fmt.Fprintf(&b, "Produces one .%s file per --segment start,end[,name]\n", def.SegmentExt)
		return b.String()
	}

	rows := make([][]string, 0, len(def.Formats))
	for _, f := range def.Formats {
		presets := make([]string, 0, len(def.Qualities[f.Value]))
		for _, p := range def.Qualities[f.Value] {
			label := p.Value
			if p.Value == def.DefaultQuality(f.Value) {
				label += "*"
			}
			presets = append(presets, label)
		}
		format := f.Value
		if f.Value == def.DefaultFormat {
			format += "*"
		}
		rows = append(rows, []string{format, f.Description, strings.Join(presets, " ")})
	}
	b.WriteString(renderTable([]string{"Format", "Description", "Quality"}, rows, nil))
	b.WriteString("\n* default")
	return b.String()
}
