// Package replay implements rehearsal storage for latent activations:
// a bounded in-memory buffer with random replacement, persistence to disk,
// and an encrypted variant for storage outside the trust boundary.
package replay

import (
	"encoding/gob"
	"math/rand/v2"
	"os"

	"github.com/pkg/errors"

	"github.com/Bethhhh/ar1-go/tensor"
)

// Sample is one stored pattern: a class label and its latent activations,
// shaped [1, C, H, W] so batches assemble by concatenation.
type Sample struct {
	Label int
	Acts  *tensor.Tensor
}

// Buffer holds up to a fixed number of samples. Once full, a new sample
// replaces a uniformly random stored one, so the buffer stays an unbiased
// subsample of everything seen.
type Buffer struct {
	capacity int
	samples  []Sample
	seen     int
	rng      *rand.Rand
}

// NewBuffer creates a buffer with the given capacity. The seed fixes the
// replacement and batch sampling order.
func NewBuffer(capacity int, seed uint64) (*Buffer, error) {
	if capacity <= 0 {
		return nil, errors.Errorf("buffer capacity must be positive, got %d", capacity)
	}
	return &Buffer{
		capacity: capacity,
		rng:      rand.New(rand.NewPCG(seed, seed)),
	}, nil
}

// Len returns the number of stored samples.
func (b *Buffer) Len() int { return len(b.samples) }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return b.capacity }

// Seen returns the total number of samples offered to the buffer.
func (b *Buffer) Seen() int { return b.seen }

// Add stores one sample, cloning the activations. acts must carry a leading
// batch axis of size 1.
func (b *Buffer) Add(label int, acts *tensor.Tensor) error {
	if len(acts.Shape) < 2 || acts.Shape[0] != 1 {
		return errors.Errorf("sample activations must be a single-element batch, got shape %v", acts.Shape)
	}
	s := Sample{Label: label, Acts: acts.Clone()}
	b.seen++
	if len(b.samples) < b.capacity {
		b.samples = append(b.samples, s)
		return nil
	}
	b.samples[b.rng.IntN(b.capacity)] = s
	return nil
}

// Batch draws n distinct stored samples and concatenates their activations
// along the batch axis. It fails when fewer than n samples are stored.
func (b *Buffer) Batch(n int) (*tensor.Tensor, []int, error) {
	if n <= 0 {
		return nil, nil, errors.Errorf("batch size must be positive, got %d", n)
	}
	if n > len(b.samples) {
		return nil, nil, errors.Errorf("batch of %d requested but only %d samples stored", n, len(b.samples))
	}
	perm := b.rng.Perm(len(b.samples))[:n]

	var acts *tensor.Tensor
	labels := make([]int, 0, n)
	for _, idx := range perm {
		s := b.samples[idx]
		labels = append(labels, s.Label)
		if acts == nil {
			acts = s.Acts.Clone()
			continue
		}
		var err error
		acts, err = tensor.Concat(acts, s.Acts)
		if err != nil {
			return nil, nil, errors.Wrap(err, "assembling replay batch")
		}
	}
	return acts, labels, nil
}

type savedSample struct {
	Label int
	Shape []int
	Data  []float64
}

type savedBuffer struct {
	Capacity int
	Seen     int
	Samples  []savedSample
}

// Save persists the buffer contents to path with gob.
func (b *Buffer) Save(path string) error {
	sb := savedBuffer{Capacity: b.capacity, Seen: b.seen}
	for _, s := range b.samples {
		sb.Samples = append(sb.Samples, savedSample{
			Label: s.Label,
			Shape: append([]int{}, s.Acts.Shape...),
			Data:  append([]float64{}, s.Acts.Data...),
		})
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating replay file")
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(&sb); err != nil {
		return errors.Wrap(err, "encoding replay buffer")
	}
	return nil
}

// LoadBuffer restores a buffer saved with Save. The seed reseeds the
// sampling order; stored contents and the seen count are kept.
func LoadBuffer(path string, seed uint64) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening replay file")
	}
	defer f.Close()

	var sb savedBuffer
	if err := gob.NewDecoder(f).Decode(&sb); err != nil {
		return nil, errors.Wrap(err, "decoding replay buffer")
	}
	b, err := NewBuffer(sb.Capacity, seed)
	if err != nil {
		return nil, err
	}
	b.seen = sb.Seen
	for _, s := range sb.Samples {
		t := tensor.New(s.Shape...)
		copy(t.Data, s.Data)
		b.samples = append(b.samples, Sample{Label: s.Label, Acts: t})
	}
	return b, nil
}
