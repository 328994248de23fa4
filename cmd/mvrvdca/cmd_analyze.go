package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/mvrvdca/internal/feed"
	"github.com/rewired-gh/mvrvdca/internal/momentum"
)

func analyzeCmd(configPath *string) *cobra.Command {
	var feedPath string
	cmd := &cobra.Command{
		Use:   "analyze [z...]",
		Short: "Print the analysis of every sample in a series",
		Example: `  mvrvdca analyze 1.2 1.8 2.4 3.1 3.5 3.6 3.6
  mvrvdca analyze --feed data/mvrv.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			var zs []float64
			switch {
			case len(args) > 0:
				for _, arg := range args {
					z, err := strconv.ParseFloat(arg, 64)
					if err != nil {
						return fmt.Errorf("invalid z-score %q", arg)
					}
					zs = append(zs, z)
				}
			case feedPath != "":
				readings, err := feed.ReadFile(feedPath)
				if err != nil {
					return err
				}
				for _, rd := range readings {
					zs = append(zs, rd.Z)
				}
			default:
				return fmt.Errorf("provide z-scores as arguments or --feed")
			}

			analyzer, err := momentum.New(cfg.AnalyzerConfig())
			if err != nil {
				return err
			}
			return analyzeSeries(cmd.OutOrStdout(), analyzer, zs)
		},
	}
	cmd.Flags().StringVar(&feedPath, "feed", "", "CSV feed path")
	return cmd
}

func analyzeSeries(w io.Writer, analyzer *momentum.Analyzer, zs []float64) error {
	fmt.Fprintf(w, "%4s %9s %9s %9s  %-15s %7s\n", "seq", "z", "smoothed", "slope", "phase", "sell")
	for i, z := range zs {
		res, err := analyzer.Update(z)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		fmt.Fprintf(w, "%4d %9.4f %9.4f %9.5f  %-15s %6.2f%%\n",
			i, z, res.SmoothedZ, res.Slope, res.Phase, res.SellPercentage*100)
	}
	return nil
}
