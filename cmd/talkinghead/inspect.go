package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/talkinghead/internal/app"
	"github.com/normanking/talkinghead/internal/lipsync"
)

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify SYMBOL...",
		Short: "Show the viseme and morph channels for phoneme symbols",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a := app.New(cfg, zerolog.Nop())

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SYMBOL\tVISEME\tCHANNELS")
			for _, symbol := range args {
				v := a.Classifier().Classify(symbol)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", symbol, v, formatChannels(a.Mapper().TargetsFor(v)))
			}
			return tw.Flush()
		},
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [utterance]",
		Short: "Show the timing script, resolved visemes and the face model",
		Long: `Without an utterance, list every utterance in the timing script. With one,
print its windows with the visemes and channels each would trigger.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a := app.New(cfg, zerolog.Nop())

			mesh, err := a.LoadMesh()
			if err != nil {
				return err
			}
			script, err := a.LoadScript()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Face"))
			fmt.Fprintf(out, "  Mesh:          %s\n", mesh.Name)
			fmt.Fprintf(out, "  Vertices:      %d\n", len(mesh.BaseVertices))
			fmt.Fprintf(out, "  Morph targets: %d\n", len(mesh.MorphTargets))
			fmt.Fprintln(out)

			if len(args) == 0 {
				fmt.Fprintln(out, titleStyle.Render("Utterances")+" "+dimStyle.Render(script.Path))
				for _, name := range script.Names() {
					_, table, err := script.Utterance(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "  %-16s %3d windows  %6.0f ms\n", name, len(table), table.Duration(a.TimestampScale()))
				}
				return nil
			}

			name, table, err := script.Utterance(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, titleStyle.Render(name))

			scale := a.TimestampScale()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "START ms\tEND ms\tWORD\tSYMBOLS\tVISEMES\tCHANNELS")
			for _, w := range table {
				visemes := a.Classifier().ClassifyAll(w.Symbols)
				names := make([]string, len(visemes))
				for i, v := range visemes {
					names[i] = v.String()
				}
				start, end := w.Span(scale)
				fmt.Fprintf(tw, "%.0f\t%.0f\t%s\t%s\t%s\t%s\n",
					start, end, w.Word, w.Key(), strings.Join(names, ","),
					formatChannels(a.Mapper().Union(visemes...)))
			}
			return tw.Flush()
		},
	}
}

func formatChannels(set lipsync.ChannelSet) string {
	parts := make([]string, len(set))
	for i, c := range set {
		parts[i] = fmt.Sprint(c)
	}
	return strings.Join(parts, ",")
}
