package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pos-backoffice/internal/domain/period"
	"github.com/xenking/pos-backoffice/internal/domain/report"
	"github.com/xenking/pos-backoffice/internal/storage/postgres"
)

// maxParallel bounds concurrent report generation against the database.
const maxParallel = 4

type options struct {
	databaseURL string
	outDir      string
	kinds       string
	period      string
	start       string
	end         string
	format      string
	timezone    string
	compress    bool
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.outDir, "out-dir", "reports", "directory the export files are written to")
	flag.StringVar(&opts.kinds, "reports", "", "comma-separated report types (default: all)")
	flag.StringVar(&opts.period, "period", "", "today, yesterday, week, month, year or custom")
	flag.StringVar(&opts.start, "start", "", "custom window start date (YYYY-MM-DD)")
	flag.StringVar(&opts.end, "end", "", "custom window end date, inclusive (YYYY-MM-DD)")
	flag.StringVar(&opts.format, "format", "csv", "export format: csv or json")
	flag.StringVar(&opts.timezone, "timezone", "UTC", "IANA timezone of calendar days")
	flag.BoolVar(&opts.compress, "gzip", true, "gzip-compress the export files")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("report export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("report export completed successfully")
}

func parseKinds(s string) ([]report.Kind, error) {
	if s == "" {
		return report.Kinds(), nil
	}
	known := make(map[report.Kind]bool)
	for _, k := range report.Kinds() {
		known[k] = true
	}

	var kinds []report.Kind
	for _, part := range strings.Split(s, ",") {
		k := report.Kind(strings.TrimSpace(part))
		if !known[k] {
			return nil, errors.Errorf("unknown report type %q", k)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func parseParams(opts options, loc *time.Location) (report.Params, error) {
	p := report.Params{Period: period.Name(opts.period)}
	if opts.start != "" {
		t, err := time.ParseInLocation(time.DateOnly, opts.start, loc)
		if err != nil {
			return report.Params{}, errors.Wrap(err, "parse start")
		}
		p.Start = t
	}
	if opts.end != "" {
		t, err := time.ParseInLocation(time.DateOnly, opts.end, loc)
		if err != nil {
			return report.Params{}, errors.Wrap(err, "parse end")
		}
		p.End = t.AddDate(0, 0, 1)
	}
	return p, nil
}

func run(ctx context.Context, opts options) error {
	kinds, err := parseKinds(opts.kinds)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		return errors.Wrapf(err, "load timezone %q", opts.timezone)
	}
	params, err := parseParams(opts, loc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	orders := postgres.NewOrderStore(pool)
	products := postgres.NewCatalogStore(pool)
	engine := report.NewEngine(orders, products,
		postgres.NewCustomerStore(pool), postgres.NewStaffStore(pool),
		report.WithLocation(loc),
	)

	slog.Info("exporting reports", slog.Int("count", len(kinds)), slog.String("format", string(format)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, kind := range kinds {
		g.Go(func() error {
			return exportOne(ctx, engine, kind, params, format, opts)
		})
	}
	return g.Wait()
}

func exportOne(ctx context.Context, engine *report.Engine, kind report.Kind, p report.Params, f report.Format, opts options) (rerr error) {
	res, err := engine.Generate(ctx, kind, p)
	if err != nil {
		return errors.Wrapf(err, "generate %s", kind)
	}

	path := filepath.Join(opts.outDir, report.FileName(res, f, opts.compress))
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if err := file.Close(); err != nil && rerr == nil {
			rerr = errors.Wrapf(err, "close %s", path)
		}
	}()

	if err := report.Write(file, res, f, opts.compress); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}

	slog.Info("exported report",
		slog.String("type", string(kind)),
		slog.String("period", string(res.Period)),
		slog.String("path", path),
	)
	return nil
}
