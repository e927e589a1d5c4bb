package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Klodi1379/LogiSys-Pro/config"
	"github.com/Klodi1379/LogiSys-Pro/core/distance"
	"github.com/Klodi1379/LogiSys-Pro/core/model"
	"github.com/Klodi1379/LogiSys-Pro/core/route"
	"github.com/Klodi1379/LogiSys-Pro/infra/logger"
)

var planPath string

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run a one-shot route optimization from a plan file",
	RunE:  runOptimize,
}

func init() {
	optimizeCmd.Flags().StringVarP(&planPath, "plan", "p", "plan.json", "plan file with orders and vehicles")
	rootCmd.AddCommand(optimizeCmd)
}

type planFile struct {
	Orders   []model.Order   `json:"orders"`
	Vehicles []model.Vehicle `json:"vehicles"`
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	b, err := os.ReadFile(planPath)
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}
	var plan planFile
	if err := json.Unmarshal(b, &plan); err != nil {
		return fmt.Errorf("parse plan: %w", err)
	}
	for _, v := range plan.Vehicles {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("vehicle %s: %w", v.ID, err)
		}
	}

	logg := logger.New("optimize-command")
	builder := distance.NewBuilder(nil, cfg.Distance.AverageSpeedKmh, logg)
	opt := route.NewOptimizer(route.Config{
		DistanceWeight:    cfg.Optimizer.DistanceWeight,
		DurationWeight:    cfg.Optimizer.DurationWeight,
		UnassignedPenalty: cfg.Optimizer.UnassignedPenalty,
	})

	budget := time.Duration(cfg.Optimizer.DefaultBudgetMS) * time.Millisecond
	ctx := cmd.Context()
	matrix, err := builder.Build(ctx, route.Locations(plan.Orders, plan.Vehicles))
	if err != nil {
		return fmt.Errorf("distance matrix: %w", err)
	}
	sol, err := opt.Optimize(ctx, plan.Orders, plan.Vehicles, matrix, budget)
	if err != nil {
		return fmt.Errorf("optimize: %w", err)
	}

	out := struct {
		Solution *route.Solution `json:"solution"`
		Summary  route.Summary   `json:"summary"`
	}{sol, sol.Summarize()}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
