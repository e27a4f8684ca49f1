package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/jma-forecast/internal/api/http"
	"github.com/i474232898/jma-forecast/internal/area"
	"github.com/i474232898/jma-forecast/internal/forecast"
	"github.com/i474232898/jma-forecast/internal/scheduler"
)

const cliSyncTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	if a.cfg.ResetOnStart {
		if err := a.service.Reset(ctx); err != nil {
			return err
		}
	}

	taxonomy, err := a.areas.Load(ctx)
	if err != nil {
		a.logger.Warnw("area taxonomy unavailable; region endpoints will be empty", "error", err)
		taxonomy = area.New(nil, nil)
	}

	sched := scheduler.New(a.cfg.SyncOffices, a.cfg.SyncInterval, a.cfg.SyncConcurrency, a.service, a.logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	server := httpapi.NewApp(appName, true)
	httpapi.RegisterRoutes(server, appName, httpapi.Deps{
		Service:  a.service,
		Taxonomy: taxonomy,
		Metrics:  promhttp.Handler(),
	})

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infow("http server listening", "port", a.cfg.Port)
		errCh <- server.Listen(":" + a.cfg.Port)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
	case err := <-errCh:
		return fmt.Errorf("fiber server stopped: %w", err)
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		a.logger.Errorw("error during shutdown", "error", err)
	}
	return nil
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <office>...",
		Short: "Fetch and store the forecasts of one or more offices",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app) error {
				var errs []error
				for _, office := range args {
					syncCtx, cancel := context.WithTimeout(ctx, cliSyncTimeout)
					report, err := a.service.Sync(syncCtx, office)
					cancel()

					printReport(cmd.OutOrStdout(), report)
					if err != nil {
						errs = append(errs, fmt.Errorf("sync %s: %w", office, err))
					}
				}
				return errors.Join(errs...)
			})
		},
	}
}

func printReport(w io.Writer, r forecast.SyncReport) {
	fmt.Fprintf(w, "%s\t%s\tweekly=%d short=%d warnings=%d\t%s\n",
		r.ParentCode, r.Status, r.Weekly, r.Short, len(r.Warnings), r.ID)
	if r.Error != "" {
		fmt.Fprintf(w, "\terror: %s\n", r.Error)
	}
}

func newDatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dates <office>",
		Short: "List the dates with stored forecasts for an office",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app) error {
				dates, err := a.service.ListDates(ctx, args[0])
				if err != nil {
					return err
				}
				for _, d := range dates {
					fmt.Fprintln(cmd.OutOrStdout(), d)
				}
				return nil
			})
		},
	}
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <office> <date>",
		Short: "Show the reconciled forecasts of an office for a date (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			office, date := args[0], args[1]
			output, _ := cmd.Flags().GetString("output")

			if _, err := time.Parse(forecast.DateLayout, date); err != nil {
				return fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
			}
			if output != "text" && output != "json" {
				return fmt.Errorf("invalid output format %q: want text or json", output)
			}

			return run(func(ctx context.Context, a *app) error {
				records, err := a.service.ForecastsFor(ctx, office, date)
				if err != nil {
					return err
				}
				if output == "json" {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(records)
				}
				renderText(cmd.OutOrStdout(), office, date, records)
				return nil
			})
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text, json)")
	return cmd
}

// renderText writes one block per reconciled area.
func renderText(w io.Writer, office, date string, records []forecast.ForecastRecord) {
	if len(records) == 0 {
		fmt.Fprintf(w, "no forecasts for %s on %s\n", office, date)
		return
	}

	fmt.Fprintf(w, "%s %s\n", office, date)
	for _, r := range records {
		fmt.Fprintf(w, "\n%s (%s, %s)\n", r.AreaName, r.AreaCode, r.DataSource)
		fmt.Fprintf(w, "  天気: %s\n", orDash(r.WeatherText))
		if r.WindText != "" {
			fmt.Fprintf(w, "  風: %s\n", r.WindText)
		}
		if r.WaveText != "" {
			fmt.Fprintf(w, "  波: %s\n", r.WaveText)
		}
		if len(r.Temps) > 0 {
			fmt.Fprintf(w, "  気温: %s\n", strings.Join(r.Temps, " / "))
		}
		if len(r.Pops) > 0 {
			pops := make([]string, 0, len(r.Pops))
			for _, p := range r.Pops {
				pops = append(pops, p.String())
			}
			fmt.Fprintf(w, "  降水確率: %s\n", strings.Join(pops, ", "))
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newRegionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List centers and their forecast offices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app) error {
				t, err := a.areas.Load(ctx)
				if err != nil {
					return err
				}
				printRegions(cmd.OutOrStdout(), t)
				return nil
			})
		},
	}
}

func printRegions(w io.Writer, t area.Taxonomy) {
	for _, c := range t.SortedCenters() {
		fmt.Fprintf(w, "%s %s\n", c.Code, c.Name)
		offices, _ := t.OfficesOf(c.Code)
		for _, o := range offices {
			fmt.Fprintf(w, "  %s %s\n", o.Code, o.Name)
		}
	}
}
