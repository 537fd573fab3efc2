package kv

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/cedar/cmd/util"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for a local cedar store",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix  = "__test"
	perfNumThreads = 10
	perfKeySpread  = 100
	perfOpsPerTest = 10000
	perfSkip       = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines to use for the benchmark"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 10000, util.WrapString("Operations per benchmark"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfKeySpread = viper.GetInt("keys")
	perfOpsPerTest = viper.GetInt("ops")
	if skip := viper.GetString("skip"); skip != "" {
		perfSkip = strings.Split(skip, ",")
	}

	return nil
}

// benchmark runs op perfOpsPerTest times across perfNumThreads goroutines
// and records every call in a go-metrics timer.
func benchmark(name string, op func(i int)) gometrics.Timer {
	timer := gometrics.NewTimer()

	var wg sync.WaitGroup
	wg.Add(perfNumThreads)

	perThread := perfOpsPerTest / perfNumThreads
	for t := 0; t < perfNumThreads; t++ {
		go func(offset int) {
			defer wg.Done()
			for i := 0; i < perThread; i++ {
				n := offset*perThread + i
				timer.Time(func() { op(n) })
			}
		}(t)
	}
	wg.Wait()

	fmt.Printf("  %-10s %8d ops   mean=%-10s p99=%-10s\n",
		name,
		timer.Count(),
		time.Duration(int64(timer.Mean())),
		time.Duration(int64(timer.Percentile(0.99))),
	)
	return timer
}

func skipped(name string) bool {
	for _, s := range perfSkip {
		if strings.TrimSpace(s) == name {
			return true
		}
	}
	return false
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Printf("running benchmarks (threads=%d, keys=%d, ops=%d)\n\n", perfNumThreads, perfKeySpread, perfOpsPerTest)

	keyFor := func(i int) string {
		return fmt.Sprintf("%s-%d", perfKeyPrefix, i%perfKeySpread)
	}

	results := map[string]gometrics.Timer{}

	if !skipped("set") {
		results["set"] = benchmark("set", func(i int) {
			_ = store.Set(keyFor(i), "benchmark-value")
		})
	}
	if !skipped("get") {
		results["get"] = benchmark("get", func(i int) {
			_, _ = store.Get(keyFor(i))
		})
	}
	if !skipped("setex") {
		results["setex"] = benchmark("setex", func(i int) {
			_ = store.SetEx(keyFor(i), "benchmark-value", time.Minute)
		})
	}
	if !skipped("incr") {
		counter := perfKeyPrefix + "-counter"
		_ = store.Set(counter, "0")
		results["incr"] = benchmark("incr", func(int) {
			_, _ = store.Incr(counter)
		})
	}
	if !skipped("append") {
		results["append"] = benchmark("append", func(i int) {
			_, _ = store.Append(keyFor(i), "x")
		})
	}

	// clean the test keys up again
	for i := 0; i < perfKeySpread; i++ {
		_ = store.Del(keyFor(i))
	}
	_ = store.Del(perfKeyPrefix + "-counter")

	// optionally export the results
	if path := viper.GetString("csv"); path != "" {
		if err := writeCSV(path, results); err != nil {
			return err
		}
		fmt.Printf("\nresults written to %s\n", path)
	}

	return nil
}

// writeCSV exports benchmark results in a spreadsheet friendly format.
func writeCSV(path string, results map[string]gometrics.Timer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"benchmark", "ops", "mean_ns", "p50_ns", "p99_ns"}); err != nil {
		return err
	}
	for name, timer := range results {
		row := []string{
			name,
			strconv.FormatInt(timer.Count(), 10),
			strconv.FormatInt(int64(timer.Mean()), 10),
			strconv.FormatInt(int64(timer.Percentile(0.5)), 10),
			strconv.FormatInt(int64(timer.Percentile(0.99)), 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
