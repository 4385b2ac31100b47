package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pg-sharding/xorder/pkg/config"
	"github.com/pg-sharding/xorder/pkg/engine"
	"github.com/pg-sharding/xorder/pkg/memstore"
	"github.com/pg-sharding/xorder/pkg/models/xerror"
	"github.com/pg-sharding/xorder/pkg/statistics"
	"github.com/pg-sharding/xorder/pkg/transport"
	"github.com/pg-sharding/xorder/pkg/xlog"
)

var (
	datasetPath  string
	storePath    string
	orderBy      string
	fanout       string
	limit        int
	tokenIn      string
	tokenOut     string
	splits       []string
	merges       []string
	printLatency bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run an ORDER BY query over the dataset, optionally resuming from a token",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		cfg := config.EngineConfig()
		if cfg.JaegerUrl != "" {
			closer, err := initJaegerTracer()
			if err != nil {
				return errors.Wrap(err, "failed to init tracer")
			}
			defer closer.Close()
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		if err := applyTopologyChanges(ctx, store); err != nil {
			return err
		}

		keys, err := memstore.ParseOrderBy(orderBy)
		if err != nil {
			return err
		}
		digest, err := cfg.Digest()
		if err != nil {
			return err
		}
		format, err := cfg.Format()
		if err != nil {
			return err
		}
		q := memstore.Query{
			OrderBy:  keys,
			Fanout:   fanout,
			PageSize: cfg.PageSize,
			Digest:   digest,
		}

		stats := statistics.NewFetchStatistics(cfg.StatisticsQuantiles)
		var fetcher transport.PageFetcher = store.Fetcher(q)
		fetcher = transport.WithRetry(fetcher, cfg.FetchMaxRetries, cfg.FetchRetryBase)
		var slow *xlog.FetchLogger
		if cfg.SlowFetchThreshold > 0 {
			slow = xlog.NewFetchLogger(cfg.SlowFetchThreshold)
		}
		fetcher = transport.WithStatistics(fetcher, stats, slow)
		fetcher = transport.WithTracing(fetcher)

		queryID := uuid.NewString()
		co, err := engine.NewCoordinator(fetcher, store.ListRanges(ctx), engine.QuerySpec{Orders: q.Orders()},
			engine.WithMaxDegreeOfParallelism(cfg.MaxDegreeOfParallelism),
			engine.WithTokenFormat(format),
			engine.WithQueryID(queryID),
		)
		if err != nil {
			return err
		}

		if tokenIn != "" {
			b, err := readToken(tokenIn)
			if err != nil {
				return err
			}
			if err := co.ResumeBytes(b); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		emitted := 0
		for limit <= 0 || emitted < limit {
			it, err := co.Next(ctx)
			if errors.Is(err, engine.ErrIteratorDone) {
				break
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(it.Payload))
			emitted++
		}

		token, err := suspendToken(co)
		if err != nil {
			return err
		}
		if err := writeToken(cmd.ErrOrStderr(), token); err != nil {
			return err
		}

		if printLatency {
			printStatistics(cmd.ErrOrStderr(), stats)
		}
		xlog.Zero.Info().
			Str("query", queryID).
			Int("emitted", emitted).
			Int64("pages", co.Stats().PagesFetched).
			Bool("completed", token == nil).
			Msg("query finished")
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "dataset file (.json, .yaml or .toml)")
	runCmd.Flags().StringVar(&storePath, "store", "", "store backup file, restored when no dataset is given")
	runCmd.Flags().StringVarP(&orderBy, "order-by", "o", "", "order-by keys, e.g. \"score desc, name\"")
	runCmd.Flags().StringVar(&fanout, "fanout", "", "path of an array to expand into one row per element")
	runCmd.Flags().IntVarP(&limit, "limit", "n", 0, "stop and suspend after this many rows, 0 means all")
	runCmd.Flags().StringVarP(&tokenIn, "continuation", "t", "", "continuation token, a file path or - for stdin")
	runCmd.Flags().StringVar(&tokenOut, "out", "", "write the continuation token to this file instead of stderr")
	runCmd.Flags().StringArrayVar(&splits, "split", nil, "split a range before running, as start:at")
	runCmd.Flags().StringArrayVar(&merges, "merge", nil, "merge the range starting at this key with its right neighbour")
	runCmd.Flags().BoolVar(&printLatency, "stats", false, "print per-partition fetch latency quantiles")
	_ = runCmd.MarkFlagRequired("order-by")
}

func openStore(ctx context.Context) (*memstore.MemStore, error) {
	if datasetPath == "" {
		if storePath == "" {
			return nil, errors.New("either --dataset or --store is required")
		}
		return memstore.Restore(storePath)
	}
	ds, err := memstore.LoadDataset(datasetPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load dataset")
	}
	return memstore.FromDataset(ctx, storePath, ds)
}

func applyTopologyChanges(ctx context.Context, store *memstore.MemStore) error {
	for _, s := range splits {
		start, at, ok := strings.Cut(s, ":")
		if !ok {
			return fmt.Errorf("malformed split %q, expected start:at", s)
		}
		if err := store.Split(ctx, start, at); err != nil {
			return err
		}
	}
	for _, m := range merges {
		if err := store.Merge(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func readToken(src string) ([]byte, error) {
	if src == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(src)
}

func writeToken(stderr io.Writer, token []byte) error {
	if tokenOut != "" {
		if token == nil {
			if err := os.Remove(tokenOut); err != nil && !os.IsNotExist(err) {
				return err
			}
			return nil
		}
		return os.WriteFile(tokenOut, token, 0644)
	}
	if token != nil {
		fmt.Fprintf(stderr, "continuation: %s\n", token)
	}
	return nil
}

func printStatistics(w io.Writer, stats *statistics.FetchStatistics) {
	for _, p := range stats.Partitions() {
		qs, fetches, items := stats.Partition(p)
		fmt.Fprintf(w, "%s fetches=%d items=%d", p, fetches, items)
		for i, q := range stats.Quantiles() {
			fmt.Fprintf(w, " p%g=%.3fms", q*100, qs[i])
		}
		fmt.Fprintln(w)
	}
}

// suspendToken captures the continuation of co. A query that emitted
// nothing yet has no position to capture and yields no token.
func suspendToken(co *engine.Coordinator) ([]byte, error) {
	token, err := co.SuspendBytes()
	if xerror.HasCode(err, xerror.XORD_NOTHING_TO_SUSPEND) {
		return nil, nil
	}
	return token, err
}
