// Command pricesheet imports distributor price sheets into the product
// catalog.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/pricesheet/internal/classify"
	"github.com/JonMunkholm/pricesheet/internal/config"
	"github.com/JonMunkholm/pricesheet/internal/importer"
	"github.com/JonMunkholm/pricesheet/internal/logging"
	"github.com/JonMunkholm/pricesheet/internal/sheets"
	"github.com/JonMunkholm/pricesheet/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	json     bool
	manifest string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "pricesheet",
		Short:         "Classify distributor price sheets and reconcile them into the catalog",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVar(&flags.json, "json", false, "print results as JSON")
	root.PersistentFlags().StringVar(&flags.manifest, "manifest", "", "batch manifest (overrides SHEETS_MANIFEST)")

	root.AddCommand(
		newRunCmd(&flags),
		newNextCmd(&flags),
		newSheetCmd(&flags),
		newStatusCmd(&flags),
		newPreviewCmd(&flags),
		newClassifyCmd(&flags),
		newForgetCmd(&flags),
		newResetCmd(&flags),
		newMigrateCmd(&flags),
		newServeCmd(&flags),
	)
	return root
}

// loadConfig reads .env, the environment and flag overrides, and sets up
// logging.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	if err := godotenv.Overload(); err == nil {
		slog.Debug("loaded .env file")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.manifest != "" {
		cfg.Sheets.Manifest = flags.manifest
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())
	return cfg, nil
}

// withApp runs fn with an opened app and a context cancelled on SIGINT or
// SIGTERM.
func withApp(flags *rootFlags, batch bool, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, batch)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Import every sheet of the batch that is not yet completed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, true, func(ctx context.Context, a *app) error {
				report, err := a.orch.RunBatch(ctx)
				if perr := printReport(cmd.OutOrStdout(), flags.json, report); perr != nil {
					return perr
				}
				if err != nil {
					return err
				}
				if report.Failed > 0 {
					return fmt.Errorf("%d of %d sheets failed", report.Failed, report.Total)
				}
				return nil
			})
		},
	}
}

func newNextCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Import the next sheet that has not been completed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, true, func(ctx context.Context, a *app) error {
				next, err := a.orch.ProcessNext(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if flags.json {
					return writeJSON(out, next)
				}
				for _, r := range next.NoData {
					printResult(out, r)
				}
				if next.Sheet == nil {
					fmt.Fprintln(out, "nothing left to import")
					return nil
				}
				printResult(out, *next.Sheet)
				return next.Sheet.Err()
			})
		},
	}
}

func newSheetCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sheet <id>",
		Short: "Import one sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, true, func(ctx context.Context, a *app) error {
				res, err := a.orch.ProcessSheet(ctx, args[0])
				if err != nil {
					return err
				}
				if flags.json {
					if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
						return err
					}
				} else {
					printResult(cmd.OutOrStdout(), res)
				}
				return res.Err()
			})
		},
	}
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show batch progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, true, func(ctx context.Context, a *app) error {
				p, err := a.orch.Progress(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if flags.json {
					return writeJSON(out, p)
				}
				fmt.Fprintf(out, "total %d  completed %d  failed %d  processing %d  remaining %d\n",
					p.Total, p.Completed, p.Failed, p.Processing, p.Remaining)
				for _, id := range p.FailedIDs {
					e, err := a.ledger.Status(ctx, id)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "  failed %-24s %s: %s\n", id, e.ErrorKind, e.ErrorDetail)
				}
				return nil
			})
		},
	}
}

func newPreviewCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <id>",
		Short: "Classify and extract a batch sheet without writing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, true, func(ctx context.Context, a *app) error {
				p, err := a.orch.Preview(ctx, args[0])
				if err != nil {
					return err
				}
				return printPreview(cmd.OutOrStdout(), flags.json, p)
			})
		},
	}
}

func newClassifyCmd(flags *rootFlags) *cobra.Command {
	var (
		scanRows int
		dumpRows int
		product  string
		discount string
	)
	cmd := &cobra.Command{
		Use:   "classify <workbook|url> [worksheet]",
		Short: "Dry-run one workbook or published page without config or stores",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sheet := sheets.Sheet{ID: args[0], Product: product, Discount: discount}
			if strings.HasPrefix(args[0], "http://") || strings.HasPrefix(args[0], "https://") {
				sheet.URL = args[0]
			} else {
				sheet.Workbook = args[0]
				if product == "" {
					sheet.Product = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
				}
			}
			if len(args) == 2 {
				sheet.SheetName = args[1]
			}

			sc, err := sheet.Context()
			if err != nil {
				return err
			}
			src := sheets.NewRouter(sheets.NewHTMLSource(30 * time.Second))
			g, err := src.Fetch(cmd.Context(), sheet)
			if err != nil {
				return err
			}
			return printPreview(cmd.OutOrStdout(), flags.json, importer.PreviewGrid(g, sc, scanRows, dumpRows))
		},
	}
	cmd.Flags().IntVar(&scanRows, "scan-rows", classify.DefaultScanRows, "rows searched for a header")
	cmd.Flags().IntVar(&dumpRows, "dump-rows", 15, "rows shown when classification fails")
	cmd.Flags().StringVar(&product, "product", "", "product name for single-product layouts")
	cmd.Flags().StringVar(&discount, "discount", "", "sheet discount percent")
	return cmd
}

func newForgetCmd(flags *rootFlags) *cobra.Command {
	var failed bool
	cmd := &cobra.Command{
		Use:   "forget [id...]",
		Short: "Return sheets to unseen so the next run imports them again",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !failed && len(args) == 0 {
				return errors.New("name sheets to forget or pass --failed")
			}
			return withApp(flags, false, func(ctx context.Context, a *app) error {
				var (
					n   int
					err error
				)
				if failed {
					n, err = a.reset.ForgetFailed(ctx)
				} else {
					n, err = a.reset.ForgetSheets(ctx, args)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "forgot %d sheets\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "forget every failed sheet")
	return cmd
}

func newResetCmd(flags *rootFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the whole catalog and forget every sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset deletes the catalog; pass --yes to confirm")
			}
			return withApp(flags, false, func(ctx context.Context, a *app) error {
				if err := a.reset.ResetAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "catalog and ledger reset")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the catalog and ledger schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, false, func(ctx context.Context, a *app) error {
				if err := a.migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schemas up to date")
				return nil
			})
		},
	}
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the automation API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, true, func(ctx context.Context, a *app) error {
				if err := a.migrate(ctx); err != nil {
					return err
				}
				server := web.NewServer(a.orch, a.metrics, a.cfg.Server, a.cfg.Security)

				go func() {
					<-ctx.Done()
					slog.Info("shutting down...")

					shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
					defer cancel()

					if st := a.throttle.Status(); st.Active > 0 {
						slog.Info("waiting for sheet fetches to finish", "active", st.Active)
						if err := a.throttle.WaitForDrain(shutdownCtx); err != nil {
							slog.Warn("fetches did not finish in time", "error", err)
						}
					}
					if err := server.Shutdown(shutdownCtx); err != nil {
						slog.Error("shutdown error", "error", err)
					}
				}()

				if err := server.Start(a.cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				slog.Info("server stopped")
				return nil
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, r importer.SheetResult) {
	switch r.Outcome {
	case importer.OutcomeCompleted:
		s := r.Summary
		fmt.Fprintf(w, "%-24s completed  %s: %d products, %d variants (%d new), %d entries added, %d updated, %d unchanged\n",
			r.SheetID, s.Layout, s.Products, s.Variants, s.VariantsCreated, s.EntriesAdded, s.EntriesUpdated, s.Unchanged)
	case importer.OutcomeFailed:
		fmt.Fprintf(w, "%-24s failed     %s\n", r.SheetID, importer.FormatUserError(r.Err()))
		if r.CatalogCommitted {
			fmt.Fprintf(w, "%-24s            catalog holds the sheet's data; only the ledger write failed\n", "")
		}
	default:
		fmt.Fprintf(w, "%-24s %s\n", r.SheetID, r.Outcome)
	}
}

func printReport(w io.Writer, asJSON bool, report importer.BatchReport) error {
	if asJSON {
		return writeJSON(w, report)
	}
	for _, r := range report.Results {
		printResult(w, r)
	}
	fmt.Fprintf(w, "\n%d sheets: %d completed, %d failed, %d already completed, %d without data",
		report.Total, report.Completed, report.Failed, report.AlreadyCompleted, report.NoData)
	if report.NotRun > 0 {
		fmt.Fprintf(w, ", %d not run", report.NotRun)
	}
	fmt.Fprintf(w, " in %s\n", report.Duration.Round(time.Millisecond))
	return nil
}

func printPreview(w io.Writer, asJSON bool, p importer.Preview) error {
	if asJSON {
		return writeJSON(w, p)
	}
	if p.Error != "" {
		fmt.Fprintf(w, "%s: %s\n", p.SheetID, p.Error)
		for _, line := range p.Dump {
			fmt.Fprintln(w, "  "+line)
		}
		return errors.New(p.Error)
	}
	fmt.Fprintf(w, "%s: layout %s, header row %d\n", p.SheetID, p.Layout, p.Header)
	for _, g := range p.Products {
		fmt.Fprintf(w, "  %s (%d variants)\n", g.Name, len(g.Records))
		for _, rec := range g.Records {
			fmt.Fprintf(w, "    row %-4d %-60s %s\n", rec.Row, propertyString(rec.Properties.Values()), rec.ListPrice.StringFixed(2))
		}
	}
	return nil
}

func propertyString(vals []string) string {
	return strings.Join(vals, " / ")
}
