package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/disclosure-cli/internal/pipeline"
	"github.com/sells-group/disclosure-cli/internal/stage"
)

var stageForce bool

// runSingleStage executes one stage under manifest control and prints its
// result.
func runSingleStage(cmd *cobra.Command, pick func(p *pipeline.Pipeline) stage.Stage) error {
	env, err := initPipeline()
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.Store.Migrate(cmd.Context()); err != nil {
		return eris.Wrap(err, "migrate store")
	}

	res, runErr := env.Runner.RunStage(cmd.Context(), pick(env.Pipeline), stageForce)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return eris.Wrap(err, "encode result")
	}
	return runErr
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Prepare the workspace and sanity-check the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingleStage(cmd, func(p *pipeline.Pipeline) stage.Stage { return p.DoctorStage() })
	},
}

var secCmd = &cobra.Command{
	Use:   "sec",
	Short: "SEC filing stages",
}

var secDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Materialize filings named in the filings index",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingleStage(cmd, func(p *pipeline.Pipeline) stage.Stage { return p.SECDownloadStage() })
	},
}

var secFeaturesCmd = &cobra.Command{
	Use:   "features",
	Short: "Extract sentence-level disclosure features from downloaded filings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingleStage(cmd, func(p *pipeline.Pipeline) stage.Stage { return p.FeaturesStage() })
	},
}

var epaCmd = &cobra.Command{
	Use:   "epa",
	Short: "EPA facility data stages",
}

var epaGHGRPCmd = &cobra.Command{
	Use:   "ghgrp",
	Short: "Fetch and normalize the GHGRP facility emissions workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingleStage(cmd, func(p *pipeline.Pipeline) stage.Stage { return p.GHGRPStage() })
	},
}

var epaEchoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Fetch and normalize the ECHO enforcement export",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingleStage(cmd, func(p *pipeline.Pipeline) stage.Stage { return p.EchoStage() })
	},
}

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Facility linkage stages",
}

var linkBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Join EPA facility-years and resolve parent companies to CIKs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingleStage(cmd, func(p *pipeline.Pipeline) stage.Stage { return p.LinkageStage() })
	},
}

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Analysis panel stages",
}

var panelBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Join feature records with linked EPA data into the firm-year panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingleStage(cmd, func(p *pipeline.Pipeline) stage.Stage { return p.PanelStage() })
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Write the summary table and by-year SI trend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingleStage(cmd, func(p *pipeline.Pipeline) stage.Stage { return p.AnalysisStage() })
	},
}

func init() {
	for _, c := range []*cobra.Command{
		doctorCmd, secDownloadCmd, secFeaturesCmd, epaGHGRPCmd, epaEchoCmd,
		linkBuildCmd, panelBuildCmd, analyzeCmd,
	} {
		c.Flags().BoolVar(&stageForce, "force", false, "re-run even when inputs are unchanged")
	}

	secCmd.AddCommand(secDownloadCmd, secFeaturesCmd)
	epaCmd.AddCommand(epaGHGRPCmd, epaEchoCmd)
	linkCmd.AddCommand(linkBuildCmd)
	panelCmd.AddCommand(panelBuildCmd)
	rootCmd.AddCommand(doctorCmd, secCmd, epaCmd, linkCmd, panelCmd, analyzeCmd)
}
