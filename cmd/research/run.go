package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"webresearch/internal/fetch"
	"webresearch/internal/research"
)

func runResearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newBrowserApp(ctx, appConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline(ctx, !noMemory)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var opts []research.RunOption
	if !asJSON {
		fmt.Fprintln(out, titleStyle.Render("Researching: ")+query)
		opts = append(opts, research.WithProgress(func(s research.Step) {
			fmt.Fprintln(out, formatStep(s))
		}))
	}

	run, err := p.Run(ctx, query, opts...)
	if asJSON {
		if run != nil {
			if jerr := writeJSON(out, run); jerr != nil {
				return jerr
			}
		}
		return err
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, renderRun(run))
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newBrowserApp(ctx, appConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	a.batch.Template = fetch.Request{WaitForSelector: waitSelector, ExtractLinks: asJSON}
	docs := a.batch.FetchAll(ctx, args, appConfig.Pipeline.BatchConcurrency, appConfig.GetInterItemDelay())

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, docs)
	}
	failed := 0
	for _, d := range docs {
		if !d.Success {
			failed++
		}
		fmt.Fprintln(out, formatDocument(d))
	}
	stats := a.pool.Stats()
	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("%d fetched, %d failed, %d workers replaced",
		len(docs)-failed, failed, stats.Replaced)))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
