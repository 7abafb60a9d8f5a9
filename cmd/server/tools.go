package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"zkml-orchestrator/core/judge"
	"zkml-orchestrator/core/models"
	"zkml-orchestrator/core/pipeline"
	"zkml-orchestrator/core/spec"
	"zkml-orchestrator/core/workspace"
	"zkml-orchestrator/storage"

	"github.com/spf13/cobra"
)

func newRenderCmd(stdout io.Writer) *cobra.Command {
	var kind, project string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the engine configuration a job kind would run with",
		Long: `Render the engine configuration document for one job kind without
touching the workspace or running the engine.

Examples:
  zkml-orchestrator render --kind prove --project baby_gaia_2d`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if project == "" {
				project = cfg.DefaultProject
			}
			profile, err := spec.LoadRunProfile(cfg.RunProfile, cfg.JudgeThreshold)
			if err != nil {
				return fmt.Errorf("loading run profile: %w", err)
			}

			coordinator := pipeline.NewCoordinator(
				workspace.NewManager(cfg.DataDir, cfg.ModelExt),
				nil,
				storage.NewParamsStore(cfg.ParamsPath, nil),
				pipeline.Options{Args: profile.Args, Prove: profile.Prove, Threshold: profile.Threshold},
			)
			doc, err := coordinator.RenderConfig(project, models.JobKind(kind))
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s\n", doc.Body)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(models.JobKindProve), "Job kind: forward, mock, prove, generate_verifier")
	cmd.Flags().StringVar(&project, "project", "", "Project name (defaults to DEFAULT_PROJECT)")
	return cmd
}

func newDistanceCmd(stdout, stderr io.Writer) *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "distance <observed.json> <target.json>",
		Short: "Judge two tensors or data files against a threshold",
		Long: `Compute the distance between row 0 of two tensors and report the verdict.
Each file may be a tensor ({"data": [[...]]}) or an engine data file, in
which case its output_data is used.

Examples:
  zkml-orchestrator distance output.json target.json --threshold 0.1`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			observed, err := readTensor(args[0])
			if err != nil {
				return err
			}
			target, err := readTensor(args[1])
			if err != nil {
				return err
			}
			result, err := judge.Evaluate(observed, target, threshold)
			if err != nil {
				fmt.Fprintf(stderr, "distance: %v\n", err)
				return errExit
			}
			verdict := models.OutcomeRejected
			if result.Accepted {
				verdict = models.OutcomeAccepted
			}
			fmt.Fprintf(stdout, "distance=%g threshold=%g verdict=%s\n", result.Distance, threshold, verdict)
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", judge.DefaultThreshold, "Acceptance threshold")
	return cmd
}

// readTensor accepts either a tensor file or a data file
func readTensor(path string) (models.Tensor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.Tensor{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc struct {
		Data       [][]float64 `json:"data"`
		OutputData [][]float64 `json:"output_data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.Tensor{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(doc.Data) > 0 {
		return models.Tensor{Data: doc.Data}, nil
	}
	if len(doc.OutputData) > 0 {
		return models.Tensor{Data: doc.OutputData}, nil
	}
	return models.Tensor{}, fmt.Errorf("%s has neither data nor output_data", path)
}
