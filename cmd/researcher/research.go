package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/research/core"
	"github.com/mohammad-safakhou/researcher/internal/research/enrich"
	"github.com/mohammad-safakhou/researcher/internal/research/export"
	"github.com/mohammad-safakhou/researcher/internal/research/retrieval"
	"github.com/mohammad-safakhou/researcher/internal/research/telemetry"
	srv "github.com/mohammad-safakhou/researcher/internal/server"
)

func researchCMD() *cobra.Command {
	var (
		cfgPath   string
		inputPath string
		style     string
		sortOrder string
		graph     bool
		outDir    string
		formats   []string
	)

	var research = &cobra.Command{
		Use:   "research [query]",
		Short: "Run one research synthesis and export the report",
		Long: `Runs the synthesis pipeline once for the given query and writes the
report in the configured export formats. Sources come from --input (a JSON
array of source objects) or, when omitted, from the configured discovery
pipeline.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			query := args[0]
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			tele := telemetry.NewTelemetry(cfg.Telemetry, nil)
			defer tele.Shutdown()

			var (
				sources  []core.Source
				warnings []string
			)
			if inputPath != "" {
				raw, err := os.ReadFile(inputPath)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(raw, &sources); err != nil {
					return fmt.Errorf("parse %s: %w", inputPath, err)
				}
			} else {
				pipeline, err := retrieval.NewPipeline(cfg.Retrieval, cfg.Authority, tele)
				if err != nil {
					return err
				}
				sources, warnings, err = pipeline.Gather(ctx, query, nil)
				if err != nil {
					return err
				}
			}

			var enricher core.Enricher
			if cl, err := enrich.New(cfg.LLM, tele); err != nil {
				log.Printf("enrichment disabled: %v", err)
			} else {
				enricher = cl
			}

			if style == "" {
				style = cfg.Citations.DefaultStyle
			}
			if sortOrder == "" {
				sortOrder = cfg.Citations.DefaultSortOrder
			}

			eng := core.NewEngine(srv.EngineConfig(cfg), enricher)
			result, err := eng.Run(ctx, core.Request{
				Query:         query,
				Sources:       sources,
				CitationStyle: style,
				SortOrder:     core.SortOrder(sortOrder),
				IncludeGraph:  graph,
			})
			if err != nil {
				return err
			}
			for _, w := range append(warnings, result.Warnings...) {
				fmt.Fprintln(os.Stderr, "warning:", w)
			}

			if outDir != "" {
				cfg.Export.OutputDir = outDir
			}
			if len(formats) > 0 {
				cfg.Export.Formats = formats
			}
			exporter, err := export.New(cfg.Export)
			if err != nil {
				return err
			}
			paths, err := exporter.Export(result)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Println(p)
			}
			return nil
		},
	}
	research.Flags().StringVar(&inputPath, "input", "", "JSON file with sources to synthesize (skips discovery)")
	research.Flags().StringVar(&style, "style", "", "citation style (default from config)")
	research.Flags().StringVar(&sortOrder, "sort", "", "bibliography sort order (default from config)")
	research.Flags().BoolVar(&graph, "graph", false, "include the knowledge graph in the artifact")
	research.Flags().StringSliceVar(&formats, "format", nil, "export formats: markdown, json, html (default from config)")
	research.Flags().StringVar(&outDir, "out", "", "output directory (default from config)")
	research.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return research
}
