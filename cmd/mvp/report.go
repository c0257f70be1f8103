package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/mvp/internal/logger"
	"github.com/fortuna/mvp/internal/pipeline"
)

type consoleReporter struct {
	dryRun bool
	log    *logrus.Entry
}

func newConsoleReporter(dryRun bool) *consoleReporter {
	return &consoleReporter{dryRun: dryRun, log: logger.WithStage("cli")}
}

func (c *consoleReporter) OnJobStart(spec pipeline.JobSpec) {
	c.log.WithFields(logrus.Fields{
		"run_stage": spec.Stage,
		"season":    spec.Season,
		"dry_run":   c.dryRun,
	}).Info("Starting run")
}

func (c *consoleReporter) OnStepStart(step string, index int, total int) {
	c.log.Infof("[%d/%d] %s", index+1, total, step)
}

func (c *consoleReporter) OnArtifact(path string) {
	c.log.WithField("path", path).Info("Wrote artifact")
}

func (c *consoleReporter) OnProgress(message string, current int, total int) {
	c.log.Debugf("Progress: %s (%d/%d)", message, current, total)
}

func (c *consoleReporter) OnJobComplete() {
	c.log.Info("Run complete")
}

func (c *consoleReporter) OnJobError(err error) {
	c.log.WithError(err).Debug("Run error")
}

// printResult writes the evaluation summary and top-N listing of res.
func printResult(w io.Writer, res *pipeline.Result, top int) {
	if res == nil {
		return
	}

	if rep := res.Evaluation; rep != nil {
		fmt.Fprintf(w, "Validation seasons: %v\n", rep.Validation)
		fmt.Fprintf(w, "MAE %.4f  RMSE %.4f  R2 %.4f", rep.Metrics.MAE, rep.Metrics.RMSE, rep.Metrics.R2)
		if rep.Metrics.HasAUC {
			fmt.Fprintf(w, "  AUC %.4f", rep.Metrics.AUC)
		}
		fmt.Fprintln(w)
		if rep.Winners != nil && len(rep.Winners.Seasons) > 0 {
			fmt.Fprintf(w, "Mean winner rank: %.2f\n", rep.Winners.MeanRank)
		}
		fmt.Fprintln(w)
	}

	if res.Ranking == nil {
		return
	}

	entries := res.Ranking.Top(top)
	percents := make([]string, len(entries))
	for i := range percents {
		percents[i] = "N/A"
	}
	if probs, err := res.Ranking.Normalized(top); err == nil {
		for i, p := range probs {
			percents[i] = fmt.Sprintf("%.2f%%", p.Percent)
		}
	}

	fmt.Fprintf(w, "Top %d MVP candidates for %d\n", len(entries), res.Ranking.Season)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPLAYER\tSCORE\tPERCENT")
	for i, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%s\n", e.Rank, e.Player, e.Score, percents[i])
	}
	tw.Flush()
}
