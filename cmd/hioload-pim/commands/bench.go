package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-pim/dispatcher"
	"github.com/momentics/hioload-pim/facade"
	"github.com/momentics/hioload-pim/internal/columnar"
	"github.com/momentics/hioload-pim/internal/logger"
)

var (
	benchClusters    int
	benchLanes       int
	benchBlocks      int
	benchRows        int
	benchThreads     int
	benchThreshold   int
	benchMaxWait     time.Duration
	benchLatency     time.Duration
	benchMetricsAddr string
	benchSeed        int64
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Decompress synthetic column stripes and report device time",
	Long: `Generate int64 column stripes, compress them as Snappy frames and have
--threads reader goroutines decompress them through the dispatcher. Each
reader sums the values it decodes. The per-cluster ledger is printed at
the end.`,
	RunE: runBench,
}

func init() {
	f := benchCmd.Flags()
	f.IntVar(&benchClusters, "clusters", 0, "simulated clusters (overrides config)")
	f.IntVar(&benchLanes, "lanes", 0, "lanes per cluster (overrides config)")
	f.IntVar(&benchBlocks, "blocks", 256, "column stripes to decompress")
	f.IntVar(&benchRows, "rows", 8192, "int64 values per stripe")
	f.IntVar(&benchThreads, "threads", 8, "reader goroutines")
	f.IntVar(&benchThreshold, "threshold", 0, "dispatch threshold (overrides config)")
	f.DurationVar(&benchMaxWait, "max-wait", 0, "dispatch max wait (overrides config)")
	f.DurationVar(&benchLatency, "latency", 0, "extra simulated batch latency (overrides config)")
	f.StringVar(&benchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	f.Int64Var(&benchSeed, "seed", 1, "data generator seed")
}

type benchResult struct {
	Blocks  int
	Bytes   int64
	Sum     int64
	Elapsed time.Duration
	Report  dispatcher.LedgerReport
}

func runBench(cmd *cobra.Command, _ []string) error {
	cfg, err := facade.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("clusters") {
		cfg.Runtime.Clusters = benchClusters
	}
	if flags.Changed("lanes") {
		cfg.Runtime.LanesPerCluster = benchLanes
	}
	if flags.Changed("threshold") {
		cfg.Dispatch.Threshold = benchThreshold
	}
	if flags.Changed("max-wait") {
		cfg.Dispatch.MaxWait = benchMaxWait
	}
	if flags.Changed("latency") {
		cfg.Runtime.Latency = benchLatency
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = benchMetricsAddr
	}
	if benchBlocks <= 0 || benchRows <= 0 || benchThreads <= 0 {
		return fmt.Errorf("--blocks, --rows and --threads must be positive")
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}

	p, err := facade.New(cfg, nil)
	if err != nil {
		return err
	}
	if err := p.Start(); err != nil {
		_ = p.Stop()
		return err
	}
	stopMetrics, err := serveMetrics(cfg.Metrics.Addr, p)
	if err != nil {
		_ = p.Stop()
		return err
	}
	defer stopMetrics()

	blocks := columnar.Generate(benchSeed, benchBlocks, benchRows)
	logger.Info("bench started",
		logger.KeyComponent, "bench",
		"blocks", len(blocks),
		"rows", benchRows,
		"threads", benchThreads,
		"clusters", cfg.Runtime.Clusters,
		"lanes", cfg.Runtime.LanesPerCluster)

	res, runErr := readBlocks(cmd.Context(), p, blocks, benchThreads)
	shutdownErr := p.Stop()
	if runErr != nil {
		return runErr
	}
	if shutdownErr != nil {
		return shutdownErr
	}
	res.Report = p.Report()
	printReport(cmd.OutOrStdout(), res)
	return nil
}

// readBlocks splits blocks across threads readers, one stripe at a time,
// and checks every decoded stripe.
func readBlocks(ctx context.Context, p *facade.PIM, blocks []columnar.Block, threads int) (benchResult, error) {
	var sum, bytes atomic.Int64
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for t := 0; t < threads; t++ {
		t := t
		g.Go(func() error {
			var buf []byte
			for i := t; i < len(blocks); i += threads {
				if err := ctx.Err(); err != nil {
					return err
				}
				b := blocks[i]
				if cap(buf) < b.RawSize {
					buf = make([]byte, b.RawSize)
				}
				out := buf[:b.RawSize]
				n, err := p.Decompress(b.Frame, out)
				if err != nil {
					return fmt.Errorf("block %d: %w", b.Index, err)
				}
				if err := b.Verify(out[:n]); err != nil {
					return err
				}
				s, err := columnar.SumColumn(out[:n])
				if err != nil {
					return err
				}
				sum.Add(s)
				bytes.Add(int64(n))
			}
			return nil
		})
	}
	err := g.Wait()
	return benchResult{
		Blocks:  len(blocks),
		Bytes:   bytes.Load(),
		Sum:     sum.Load(),
		Elapsed: time.Since(start),
	}, err
}

// serveMetrics exposes the facade registry until the returned func is called.
func serveMetrics(addr string, p *facade.PIM) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.Gatherer(), promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", logger.KeyComponent, "bench", logger.Err(err))
		}
	}()
	logger.Info("metrics enabled", logger.KeyComponent, "bench", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func printReport(w io.Writer, res benchResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Cluster", "Batches", "Requests", "Max lane cycles", "Max lane seconds"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, c := range res.Report.Clusters {
		table.Append([]string{
			strconv.Itoa(c.ID),
			strconv.FormatUint(c.Batches, 10),
			strconv.FormatUint(c.Requests, 10),
			strconv.FormatUint(c.MaxLaneCycles, 10),
			strconv.FormatFloat(c.MaxLaneSeconds, 'f', 6, 64),
		})
	}
	table.SetFooter([]string{"", "", strconv.FormatUint(res.Report.Requests, 10), "total",
		strconv.FormatFloat(res.Report.DeviceSeconds, 'f', 6, 64)})
	table.Render()

	mib := float64(res.Bytes) / (1 << 20)
	fmt.Fprintf(w, "Sum first col: %d\n", res.Sum)
	fmt.Fprintf(w, "Blocks: %d (%.2f MiB decoded)\n", res.Blocks, mib)
	fmt.Fprintf(w, "Wall time: %s (%.2f MiB/s)\n", res.Elapsed.Round(time.Microsecond), mib/res.Elapsed.Seconds())
	fmt.Fprintf(w, "Staging copy time: %s\n", res.Report.CopyTime)
}
