package main

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/mvrvdca/internal/backtest"
	"github.com/rewired-gh/mvrvdca/internal/feed"
	"github.com/rewired-gh/mvrvdca/internal/logger"
	"github.com/rewired-gh/mvrvdca/internal/models"
)

func backtestCmd(configPath *string) *cobra.Command {
	var feedPath string
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a priced feed and compare DCA-out against buy-and-hold",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if feedPath == "" {
				feedPath = cfg.Feed.Path
			}
			if feedPath == "" {
				return fmt.Errorf("no feed path: set feed.path or --feed")
			}

			readings, err := feed.ReadFile(feedPath)
			if err != nil {
				return err
			}

			runner := &backtest.Runner{
				Analyzer: cfg.AnalyzerConfig(),
				Config: backtest.Config{
					InitialCapital:  cfg.Backtest.InitialCapital,
					PeriodicInvest:  cfg.Backtest.PeriodicInvest,
					InvestEvery:     cfg.Backtest.InvestEvery,
					CoreRatio:       cfg.Backtest.CoreRatio,
					FeeRate:         cfg.Backtest.FeeRate,
					MinSellFraction: cfg.Backtest.MinSellFraction,
				},
			}

			// Fail before a journal run exists.
			if err := runner.Check(readings); err != nil {
				return err
			}

			store, err := openJournal(cfg)
			if err != nil {
				return err
			}
			defer closeJournal(store)

			if store != nil {
				run := &models.Run{
					Source:      "backtest:" + feedPath,
					EMAPeriod:   cfg.Analyzer.EMAPeriod,
					SlopePeriod: cfg.Analyzer.SlopePeriod,
					StartedAt:   time.Now(),
				}
				if err := store.StartRun(run); err != nil {
					return err
				}
				logger.Info("Journaling backtest as run %s", run.ID)
				runner.OnStep = func(s backtest.Step) error {
					return store.AddResult(&models.ResultRecord{
						RunID:   run.ID,
						Seq:     s.Seq,
						Reading: s.Reading,
						Result:  s.Result,
					})
				}
			}

			rep, err := runner.Run(readings)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&feedPath, "feed", "", "CSV feed path with prices (overrides feed.path)")
	return cmd
}

func printReport(w io.Writer, rep *backtest.Report) {
	pct := func(d decimal.Decimal) string {
		return fmt.Sprintf("%+.2f%%", d.InexactFloat64()*100)
	}

	fmt.Fprintf(w, "Samples:        %d (%d unpriced skipped)\n", rep.Samples, rep.Skipped)
	fmt.Fprintf(w, "Invested:       %s\n", rep.Invested.StringFixed(2))
	fmt.Fprintf(w, "Final price:    %s\n", rep.FinalPrice.StringFixed(2))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Strategy units: %s (core %s, trade %s)\n",
		rep.Units().StringFixed(8), rep.CoreUnits.StringFixed(8), rep.TradeUnits.StringFixed(8))
	fmt.Fprintf(w, "Sells:          %d (%s units)\n", rep.Sells, rep.SoldUnits.StringFixed(8))
	fmt.Fprintf(w, "Cash:           %s\n", rep.Cash.StringFixed(2))
	fmt.Fprintf(w, "Final value:    %s (ROI %s)\n", rep.FinalValue.StringFixed(2), pct(rep.ROI))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "HODL units:     %s\n", rep.HODLUnits.StringFixed(8))
	fmt.Fprintf(w, "HODL value:     %s (ROI %s)\n", rep.HODLValue.StringFixed(2), pct(rep.HODLROI))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Phase counts:")
	for _, p := range models.AllPhases {
		if n := rep.PhaseCounts[p]; n > 0 {
			fmt.Fprintf(w, "  %-15s %d\n", p, n)
		}
	}
}
