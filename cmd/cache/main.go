// ar1-cache: fill a latent replay store from the repartitioned network
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Bethhhh/ar1-go/core/ckkswrapper"
	"github.com/Bethhhh/ar1-go/mobilenet"
	"github.com/Bethhhh/ar1-go/replay"
	"github.com/Bethhhh/ar1-go/tensor"
	"github.com/Bethhhh/ar1-go/utils"
)

var (
	latentLayer = flag.Int("latent-layer", mobilenet.DefaultLatentLayerNum, "Cut index between latent and end sections")
	samples     = flag.Int("samples", 8, "Number of samples to cache")
	capacity    = flag.Int("capacity", 128, "Replay store capacity")
	out         = flag.String("out", "replay.gob", "Output file")
	encrypt     = flag.Bool("encrypt", false, "Encrypt cached activations with CKKS")
	logN        = flag.Int("logN", ckkswrapper.DefaultLogN, "Ring dimension log2")
	seed        = flag.Uint64("seed", 42, "Seed for weights, inputs and labels")
	verbose     = flag.Bool("verbose", true, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	cfg := &utils.RunConfig{
		Version:     "orig",
		WidthScale:  1.0,
		NumClasses:  50,
		BatchSize:   1,
		TopK:        1,
		LatentLayer: *latentLayer,
		ReplaySize:  *capacity,
		Encrypt:     *encrypt,
	}
	if err := utils.ValidateRunConfig(cfg); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	stats := &utils.TimingStats{}
	totalStart := time.Now()

	start := time.Now()
	net, err := mobilenet.NewSplit(*latentLayer, mobilenet.Config{Seed: *seed})
	if err != nil {
		log.WithError(err).Fatal("building split model")
	}
	stats.ModelInitTime = time.Since(start)

	fmt.Printf("Split at layer %d: %d latent layers, %d end layers\n",
		net.LatentLayerNum, net.Lat.Len(), net.End.Len())

	var he *ckkswrapper.HeContext
	if *encrypt {
		start = time.Now()
		he, err = ckkswrapper.NewHeContextWithLogN(*logN)
		if err != nil {
			log.WithError(err).Fatal("initializing HE context")
		}
		stats.HEInitTime = time.Since(start)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	if *encrypt {
		if err := cacheEncrypted(net, he, rng, stats); err != nil {
			log.WithError(err).Fatal("caching encrypted activations")
		}
	} else {
		if err := cachePlain(net, rng, stats); err != nil {
			log.WithError(err).Fatal("caching activations")
		}
	}

	stats.TotalTime = time.Since(totalStart)
	utils.PrintTimingStats(stats, *samples)
}

func cachePlain(net *mobilenet.SplitMobileNet, rng *rand.Rand, stats *utils.TimingStats) error {
	buf, err := replay.NewBuffer(*capacity, *seed)
	if err != nil {
		return err
	}
	for i := 0; i < *samples; i++ {
		label, acts, err := latentActs(net, rng, stats)
		if err != nil {
			return err
		}
		if err := buf.Add(label, acts); err != nil {
			return err
		}
	}
	fmt.Printf("Cached %d samples (capacity %d)\n", buf.Len(), buf.Cap())
	return buf.Save(*out)
}

func cacheEncrypted(net *mobilenet.SplitMobileNet, he *ckkswrapper.HeContext, rng *rand.Rand, stats *utils.TimingStats) error {
	store, err := replay.NewEncryptedStore(he, *capacity, *seed)
	if err != nil {
		return err
	}
	for i := 0; i < *samples; i++ {
		label, acts, err := latentActs(net, rng, stats)
		if err != nil {
			return err
		}
		start := time.Now()
		if err := store.Add(label, acts); err != nil {
			return err
		}
		stats.EncryptionTime += time.Since(start)
	}
	fmt.Printf("Cached %d encrypted samples (capacity %d)\n", store.Len(), store.Cap())

	start := time.Now()
	mean, err := store.Mean(he.GenServerKit(nil))
	if err != nil {
		return err
	}
	stats.DecryptionTime += time.Since(start)
	var sum float64
	for _, v := range mean.Data {
		if v < 0 {
			v = -v
		}
		sum += v
	}
	fmt.Printf("Mean stored activation magnitude: %.4f\n", sum/float64(len(mean.Data)))

	return store.Save(*out)
}

func latentActs(net *mobilenet.SplitMobileNet, rng *rand.Rand, stats *utils.TimingStats) (int, *tensor.Tensor, error) {
	x := tensor.New(1, 3, 128, 128)
	for i := range x.Data {
		x.Data[i] = rng.Float64()
	}
	label := rng.IntN(50)

	start := time.Now()
	_, acts, err := net.ForwardLatent(x, nil, true)
	stats.ForwardTime += time.Since(start)
	if err != nil {
		return 0, nil, err
	}
	return label, acts, nil
}
