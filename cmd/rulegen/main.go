// Command rulegen runs one workflow from the command line:
//
//	rulegen --workflow add-update --workbook master.xlsx --requests requests.csv
//
// It reads DATABASE_URL, TENANTS_PATH and CHANGELOG_ROOT from the environment
// or a .env file; flags override them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/dqgen/internal/config"
	"github.com/JonMunkholm/dqgen/internal/core"
	"github.com/JonMunkholm/dqgen/internal/logging"
	"github.com/JonMunkholm/dqgen/internal/store"
	"github.com/JonMunkholm/dqgen/internal/workbook"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type options struct {
	workflow    string
	workbook    string
	requests    string
	tenantsPath string
	root        string
	databaseURL string
	apply       bool
	jsonOut     bool
	timeout     time.Duration
	logLevel    string
}

func main() {
	// A missing .env is fine; existing env vars win over the file.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "rulegen:", core.FormatUserError(err))
		fmt.Fprintln(os.Stderr, "  cause:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "rulegen",
		Short: "Generate Liquibase changelogs for DQ rule requests",
		Long: `Reconcile a request file against the rules master workbook and the
rule store, then write one versioned CSV and changeSet fragment per
(tenant, ticket) group and register it in the tenant's dev manifest.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Setup(opts.logLevel, "text")

			res, err := run(cmd.Context(), opts)
			if res != nil {
				if perr := printResult(cmd.OutOrStdout(), res, opts.jsonOut); perr != nil && err == nil {
					err = fmt.Errorf("print result: %w", perr)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.workflow, "workflow", "", "Workflow to run: add-update or configure (required)")
	cmd.Flags().StringVar(&opts.workbook, "workbook", "", "Rules master workbook, .xlsx or .csv (required)")
	cmd.Flags().StringVar(&opts.requests, "requests", "", "Request file, .xlsx or .csv (required)")
	cmd.Flags().StringVar(&opts.tenantsPath, "tenants", envOr("TENANTS_PATH", "tenants.yaml"), "Tenant catalog YAML")
	cmd.Flags().StringVar(&opts.root, "root", os.Getenv("CHANGELOG_ROOT"), "Changelog root, overrides the tenant catalog")
	cmd.Flags().StringVar(&opts.databaseURL, "db", envOr("DATABASE_URL", os.Getenv("DB_URL")), "PostgreSQL connection string")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Upsert emitted rows into the store after writing files")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the run result as JSON")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", core.DefaultRunTimeout, "Run timeout")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "Log level: debug, info, warn, error")

	_ = cmd.MarkFlagRequired("workflow")
	_ = cmd.MarkFlagRequired("workbook")
	_ = cmd.MarkFlagRequired("requests")

	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, o options) (*core.RunResult, error) {
	wf, err := core.ParseWorkflow(o.workflow)
	if err != nil {
		return nil, err
	}
	if o.workbook == "" || o.requests == "" {
		return nil, fmt.Errorf("%w: --workbook and --requests are required", core.ErrInvalidRequest)
	}
	if o.databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required (set it or pass --db)")
	}

	tenants, err := config.LoadTenants(o.tenantsPath, o.root)
	if err != nil {
		return nil, err
	}

	master, err := openWorkbook(o.workbook)
	if err != nil {
		return nil, err
	}
	requestBook, err := openWorkbook(o.requests)
	if err != nil {
		return nil, err
	}
	requests, err := requestBook.First()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.requests, err)
	}

	pool, err := store.Connect(ctx, store.PoolConfig{URL: o.databaseURL, MaxConns: 2, MinConns: 0})
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	svc := core.NewService(store.New(pool), tenants, core.Options{
		MaxConcurrent: 1,
		Timeout:       o.timeout,
		ApplyToStore:  o.apply,
	})
	ctx = core.ContextWithRequester(ctx, core.Requester{Source: "cli"})
	return svc.Run(ctx, wf, master, requests)
}

func openWorkbook(path string) (*workbook.Workbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return workbook.Open(path, f)
}

func printResult(w io.Writer, res *core.RunResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s (%s) in %s, %d master rules\n", res.RunID, res.Workflow, res.Duration.Round(time.Millisecond), res.Rules)
	for _, g := range res.Groups {
		version := "-"
		if g.Emit != nil && g.Emit.Version != "" {
			version = g.Emit.Version
		}
		fmt.Fprintf(tw, "\n%s\t%s\tversion %s\n", g.Tenant, g.Ticket, version)
		for _, row := range g.Rows {
			id := ""
			if row.ID != 0 {
				id = fmt.Sprint(row.ID)
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\t%s\n", row.Line, row.BusinessKey, row.SourceOwner, row.Outcome, id, row.Reason)
		}
	}
	if len(res.Files) > 0 {
		fmt.Fprintln(tw, "\nfiles:")
		for _, f := range res.Files {
			fmt.Fprintf(tw, "  %s\n", f)
		}
	}
	if len(res.Missing) > 0 {
		fmt.Fprintf(tw, "\nmissing sheets: %v\n", res.Missing)
	}
	return tw.Flush()
}
