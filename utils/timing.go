package utils

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Verbose controls whether timing statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where timing statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// TimingStats holds timing information for different operations
type TimingStats struct {
	TotalTime      time.Duration
	ModelInitTime  time.Duration
	WeightLoadTime time.Duration
	HEInitTime     time.Duration
	ForwardTime    time.Duration
	EncryptionTime time.Duration
	DecryptionTime time.Duration
}

// PrintTimingStats prints detailed timing statistics.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintTimingStats(stats *TimingStats, batches int) {
	if !Verbose {
		return
	}
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total time: %v\n", stats.TotalTime)
	fmt.Fprintf(Output, "Batches completed: %d\n", batches)
	fmt.Fprintln(Output, "\nBreakdown by operation:")
	fmt.Fprintf(Output, "  Model initialization: %v (%.1f%%)\n", stats.ModelInitTime, float64(stats.ModelInitTime)/float64(stats.TotalTime)*100)
	fmt.Fprintf(Output, "  Weight loading: %v (%.1f%%)\n", stats.WeightLoadTime, float64(stats.WeightLoadTime)/float64(stats.TotalTime)*100)
	fmt.Fprintf(Output, "  HE initialization: %v (%.1f%%)\n", stats.HEInitTime, float64(stats.HEInitTime)/float64(stats.TotalTime)*100)
	fmt.Fprintf(Output, "  Forward pass: %v (%.1f%%)\n", stats.ForwardTime, float64(stats.ForwardTime)/float64(stats.TotalTime)*100)
	fmt.Fprintf(Output, "  Encryption: %v (%.1f%%)\n", stats.EncryptionTime, float64(stats.EncryptionTime)/float64(stats.TotalTime)*100)
	fmt.Fprintf(Output, "  Decryption: %v (%.1f%%)\n", stats.DecryptionTime, float64(stats.DecryptionTime)/float64(stats.TotalTime)*100)
	if batches > 0 {
		fmt.Fprintln(Output, "\nPerformance metrics:")
		fmt.Fprintf(Output, "  Average forward pass time: %v\n", stats.ForwardTime/time.Duration(batches))
	}
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}
