// ar1-infer: MobileNet inference on random or stored weights
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Bethhhh/ar1-go/mobilenet"
	"github.com/Bethhhh/ar1-go/nn"
	"github.com/Bethhhh/ar1-go/tensor"
	"github.com/Bethhhh/ar1-go/utils"
)

var (
	version    = flag.String("version", "orig", "Model family: orig or fd")
	scale      = flag.String("scale", "1.0", "Width scale (float or ratio, e.g. 3/4)")
	inputFile  = flag.String("input", "", "Input JSON file (flat CHW array)")
	classes    = flag.Int("classes", 1000, "Number of output classes")
	pretrained = flag.Bool("pretrained", false, "Load stored weights")
	modelName  = flag.String("model", "", "Stored model name (defaults per variant)")
	root       = flag.String("root", "", "Model store directory")
	topK       = flag.Int("topk", 3, "Top predictions to show")
	seed       = flag.Uint64("seed", 42, "Seed for weight init and input")
	verbose    = flag.Bool("verbose", true, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	widthScale, err := utils.ParseWidthScale(*scale)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid width scale: %v\n", err)
		os.Exit(1)
	}
	cfg := &utils.RunConfig{
		Version:    *version,
		WidthScale: widthScale,
		NumClasses: *classes,
		BatchSize:  1,
		TopK:       *topK,
	}
	if err := utils.ValidateRunConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	stats := &utils.TimingStats{}
	totalStart := time.Now()

	start := time.Now()
	net, err := mobilenet.Get(cfg.Version, cfg.WidthScale, mobilenet.Config{
		NumClasses: cfg.NumClasses,
		Seed:       *seed,
		Pretrained: *pretrained,
		ModelName:  *modelName,
		Root:       *root,
	})
	if err != nil {
		log.WithError(err).Fatal("building model")
	}
	stats.ModelInitTime = time.Since(start)

	fmt.Printf("%s MobileNet x%.2f: %d trainable parameters\n",
		cfg.Version, cfg.WidthScale, nn.ParamCount(net, true))

	input, err := loadInput(*inputFile, net.InSize, *seed)
	if err != nil {
		log.WithError(err).Fatal("loading input")
	}

	fmt.Println("\nRunning inference...")
	start = time.Now()
	logits, err := net.Forward(input)
	if err != nil {
		log.WithError(err).Fatal("forward pass")
	}
	stats.ForwardTime = time.Since(start)
	stats.TotalTime = time.Since(totalStart)

	showResults(logits, cfg.TopK)
	utils.PrintTimingStats(stats, 1)
}

func loadInput(path string, inSize [2]int, seed uint64) (*tensor.Tensor, error) {
	t := tensor.New(1, 3, inSize[0], inSize[1])
	if path == "" {
		rng := rand.New(rand.NewPCG(seed, seed))
		for i := range t.Data {
			t.Data[i] = rng.Float64()
		}
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data []float64
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	if len(data) != len(t.Data) {
		return nil, fmt.Errorf("input has %d values, want %d for 3x%dx%d",
			len(data), len(t.Data), inSize[0], inSize[1])
	}
	copy(t.Data, data)
	return t, nil
}

func showResults(logits *tensor.Tensor, k int) {
	probs := nn.Softmax(logits)
	row, err := probs.Reshape(probs.Numel())
	if err != nil {
		log.WithError(err).Fatal("flattening predictions")
	}
	if k == 1 {
		idx := row.ArgMax()
		fmt.Printf("\nPredicted class %d: %.4f\n", idx, row.Data[idx])
		return
	}
	indices := topKIndices(row.Data, k)

	fmt.Printf("\nTop %d predictions:\n", k)
	for i, idx := range indices {
		fmt.Printf("  %d. Class %d: %.4f\n", i+1, idx, row.Data[idx])
	}
}

func topKIndices(vals []float64, k int) []int {
	if k > len(vals) {
		k = len(vals)
	}
	indices := make([]int, k)
	used := make(map[int]bool)
	for i := 0; i < k; i++ {
		maxIdx, maxVal := -1, math.Inf(-1)
		for j, v := range vals {
			if !used[j] && v > maxVal {
				maxIdx, maxVal = j, v
			}
		}
		indices[i] = maxIdx
		used[maxIdx] = true
	}
	return indices
}
