package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/postprocess"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/storage"
	"github.com/iWorld-y/region_radar/app/region_radar/pkg/task"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the generated tasks without running them",
	RunE:  runPlan,
}

var showHistory bool

func init() {
	planCmd.Flags().BoolVar(&showHistory, "history", false, "Also print the phases of the latest recorded run")
}

func runPlan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// 只展示任务，步骤无需真正解析
	steps := make([]postprocess.Step, 0, len(cfg.Parser.PostProcessing))
	for _, name := range cfg.Parser.PostProcessing {
		steps = append(steps, postprocess.Step{Name: name})
	}
	tasks, err := task.Generate(cfg, steps)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, t := range tasks {
		base, _ := t.BaseName()
		fmt.Fprintf(out, "[%d/%d] %s %s\n", i+1, len(tasks), t.Name(), base)
		fmt.Fprintf(out, "  hash: %s\n", t.Hash())

		meta := t.Metadata()
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s = %s\n", k, meta[k])
		}
		for _, source := range t.Sources() {
			for _, q := range t.Queries(source) {
				fmt.Fprintf(out, "  %-8s limit=%-4d %s\n", source, q.ResultLimit, q.Query)
			}
		}
	}

	if !showHistory {
		return nil
	}
	if cfg.DB.Driver == "" {
		return fmt.Errorf("--history requires db configuration")
	}
	store, err := storage.NewStorage(cfg.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := store.LatestRunID()
	if err != nil {
		return err
	}
	if runID == "" {
		fmt.Fprintln(out, "no recorded runs")
		return nil
	}
	phases, err := store.ListPhases(runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "latest run %s:\n", runID)
	for _, p := range phases {
		status := "ok"
		switch {
		case p.Error != "":
			status = "error: " + p.Error
		case p.Skipped:
			status = "skipped"
		}
		fmt.Fprintf(out, "  %s %-12s records=%-5d %s\n", p.TaskHash, p.Phase, p.Records, status)
	}
	return nil
}
