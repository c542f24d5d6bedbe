package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agrisense/cropdoc/internal/crophealth"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [image]",
	Short: "Diagnose a single photo and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	svc := crophealth.FromConfig(cfg, logger)
	defer svc.Close()

	pred, err := svc.Analyze(cmd.Context(), data)
	if err != nil {
		return fmt.Errorf("%s: %w", crophealth.Kind(err), err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(pred)
}
