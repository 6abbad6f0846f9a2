package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/geoquery/internal/core/router"
	"github.com/mohammed-shakir/geoquery/internal/dispatch"
)

func newAskCmd(eng func() engine) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Classify a question and run the matching spatial query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := eng().Dispatch(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fail(cmd, err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printResponse(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response including GeoJSON")
	return cmd
}

func printResponse(w io.Writer, resp dispatch.Response) {
	if resp.Kind == dispatch.KindText {
		fmt.Fprintln(w, resp.Text)
		return
	}
	fmt.Fprintf(w, "%s: %d feature(s) from %s\n", resp.Intent, resp.Result.Count, resp.Result.Table)
	for _, m := range resp.Result.Messages {
		if m != "" {
			fmt.Fprintln(w, m)
		}
	}
}

func newLayersCmd(eng func() engine) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layers",
		Short: "Inspect the layer catalogue",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered layers with their bounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ls, err := eng().ListLayers(cmd.Context())
			if err != nil {
				return fail(cmd, err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"layers": ls, "count": len(ls)})
		},
	}

	stats := &cobra.Command{
		Use:   "stats <layer>",
		Short: "Feature count, area statistics and H3 coverage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := eng().GetLayerStatistics(cmd.Context(), args[0])
			if err != nil {
				return fail(cmd, err)
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}

	validate := &cobra.Command{
		Use:   "validate <layer>",
		Short: "Check a layer for missing, invalid or duplicate data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := eng().ValidateLayerData(cmd.Context(), args[0])
			if err != nil {
				return fail(cmd, err)
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	}

	var (
		layer      string
		thresholds []string
	)
	distribution := &cobra.Command{
		Use:   "distribution",
		Short: "Bucket parcel areas by threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			th, err := router.ParseThresholds(thresholds)
			if err != nil {
				return fail(cmd, err)
			}
			d, err := eng().AnalyzeParcelDistribution(cmd.Context(), layer, th)
			if err != nil {
				return fail(cmd, err)
			}
			return printJSON(cmd.OutOrStdout(), d)
		},
	}
	distribution.Flags().StringVar(&layer, "layer", "", "layer to analyse (default parcels)")
	distribution.Flags().StringArrayVar(&thresholds, "thresholds", nil, "area thresholds in m², repeated or comma-separated")

	cmd.AddCommand(list, stats, validate, distribution)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
