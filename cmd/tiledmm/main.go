// Command tiledmm multiplies two synthetic matrices with the shared-memory
// tiled kernel and checks the product against a CPU reference.
package main

import (
	goflag "flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	guda "github.com/LynnColeArt/gudamm"
	"github.com/LynnColeArt/gudamm/matmul"
	"github.com/LynnColeArt/gudamm/verify"
)

type options struct {
	n, m, l     int
	fill        string
	oracle      string
	tolerance   float64
	maxReported int
	seed        uint64
	repeat      int
	workers     int
	strict      bool
	counters    bool
	logDir      string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		klog.Errorf("%v", err)
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}

func newRootCommand() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "tiledmm",
		Short: "Tiled shared-memory matrix multiply on the GUDA CPU device",
		Long: "tiledmm computes C = A*B, A N×M and B M×L, with 16×16 thread blocks\n" +
			"staging tiles through shared memory, reports kernel and end-to-end\n" +
			"throughput, and compares C with a CPU reference.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), opts)
		},
		Version: version(),
	}

	f := cmd.Flags()
	f.IntVarP(&opts.n, "rows", "n", 512, "rows of A and C (multiple of 16)")
	f.IntVarP(&opts.m, "inner", "m", 1024, "columns of A, rows of B (multiple of 16)")
	f.IntVarP(&opts.l, "cols", "l", 512, "columns of B and C (multiple of 16)")
	f.StringVar(&opts.fill, "fill", "synthetic", "operand fill: "+strings.Join(verify.Fills, ", "))
	f.StringVar(&opts.oracle, "oracle", "loop", "reference implementation: "+strings.Join(verify.OracleNames(), ", "))
	f.Float64Var(&opts.tolerance, "tolerance", verify.DefaultRelTol, "relative error threshold")
	f.IntVar(&opts.maxReported, "max-report", verify.DefaultMaxReported, "mismatches printed in detail")
	f.Uint64Var(&opts.seed, "seed", 1, "seed for the random fill")
	f.IntVar(&opts.repeat, "repeat", 1, "number of multiplications to time")
	f.IntVar(&opts.workers, "workers", 0, "concurrently executing blocks (0: one per core)")
	f.BoolVar(&opts.strict, "strict", false, "exit non-zero when the result diverges")
	f.BoolVar(&opts.counters, "counters", false, "sample hardware performance counters around the kernel")
	f.StringVar(&opts.logDir, "log-dir", "", "append timed runs to a JSON session file in this directory")

	klogFlags := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	return cmd
}

func version() string {
	v, _ := guda.Version()
	if v == "" {
		return "(devel)"
	}
	return v
}

func run(out io.Writer, opts options) error {
	if opts.repeat < 1 {
		return fmt.Errorf("--repeat must be at least 1, got %d", opts.repeat)
	}
	oracle, ok := verify.Oracles[opts.oracle]
	if !ok {
		return fmt.Errorf("unknown oracle %q (want one of %v)", opts.oracle, verify.OracleNames())
	}

	if err := matmul.ValidateDims(opts.n, opts.m, opts.l); err != nil {
		return err
	}

	a := matmul.NewMatrix(opts.n, opts.m)
	b := matmul.NewMatrix(opts.m, opts.l)
	fillA, err := verify.FillFor(opts.fill, "A", opts.seed)
	if err != nil {
		return err
	}
	fillB, err := verify.FillFor(opts.fill, "B", opts.seed)
	if err != nil {
		return err
	}
	verify.Fill(a, fillA)
	verify.Fill(b, fillB)

	ctx := guda.NewContext()
	defer ctx.Destroy()
	ctx.SetWorkers(opts.workers)

	fmt.Fprintf(out, "Device: %s, %d cores\n", ctx.Device().Name, ctx.Device().NumCores)

	var runLog *verify.RunLog
	if opts.logDir != "" {
		if runLog, err = verify.NewRunLog(opts.logDir, "tiledmm"); err != nil {
			return err
		}
	}

	c := matmul.NewMatrix(opts.n, opts.l)
	timings := make([]matmul.Timing, 0, opts.repeat)
	for i := 0; i < opts.repeat; i++ {
		t, err := matmul.MultiplyInto(ctx, a, b, c, matmul.Options{Report: out, Counters: opts.counters})
		if err != nil {
			if runLog != nil {
				if lerr := runLog.Record(verify.NewRunRecord(opts.fill, t, nil, err)); lerr != nil {
					klog.Errorf("failed to record run: %v", lerr)
				}
			}
			return err
		}
		timings = append(timings, t)
	}

	cc, err := oracle(a, b)
	if err != nil {
		return err
	}
	res, err := verify.Compare(c, cc, verify.Tolerance{RelTol: opts.tolerance, MaxReported: opts.maxReported})
	if err != nil {
		return err
	}
	if err := res.WriteReport(out); err != nil {
		return err
	}

	if runLog != nil {
		for _, t := range timings {
			if err := runLog.Record(verify.NewRunRecord(opts.fill, t, &res, nil)); err != nil {
				return err
			}
		}
		klog.V(1).Infof("run log written to %s", runLog.Path())
		fmt.Fprintf(out, "Run log: %s\n", runLog.Path())
	}

	if opts.strict && !res.Passed() {
		return guda.NewNumericalError("Verify", fmt.Sprintf("%d elements diverge", res.Count), res)
	}
	return nil
}
