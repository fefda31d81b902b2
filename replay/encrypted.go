package replay

import (
	"encoding/gob"
	"math/rand/v2"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/Bethhhh/ar1-go/core/ckkswrapper"
	"github.com/Bethhhh/ar1-go/tensor"
)

// CiphertextPayload is one serialized ciphertext chunk together with the
// metadata needed to audit it without decryption.
type CiphertextPayload struct {
	Ciphertext []byte
	Level      int
	ScaleFloat float64
}

// EncryptedSample is one stored pattern with its activations CKKS-encrypted
// chunk by chunk. Only the label and shape stay in the clear.
type EncryptedSample struct {
	Label  int
	Shape  []int
	Chunks []CiphertextPayload
}

// EncryptedStore is a bounded rehearsal store whose activations are held
// encrypted, for persistence outside the trust boundary. Replacement policy
// matches Buffer.
type EncryptedStore struct {
	he       *ckkswrapper.HeContext
	capacity int
	samples  []EncryptedSample
	seen     int
	rng      *rand.Rand
}

// NewEncryptedStore creates an encrypted store over an existing context.
func NewEncryptedStore(he *ckkswrapper.HeContext, capacity int, seed uint64) (*EncryptedStore, error) {
	if capacity <= 0 {
		return nil, errors.Errorf("store capacity must be positive, got %d", capacity)
	}
	return &EncryptedStore{
		he:       he,
		capacity: capacity,
		rng:      rand.New(rand.NewPCG(seed, seed)),
	}, nil
}

// Len returns the number of stored samples.
func (s *EncryptedStore) Len() int { return len(s.samples) }

// Cap returns the store capacity.
func (s *EncryptedStore) Cap() int { return s.capacity }

// Add encrypts one sample's activations and stores it, replacing a random
// stored sample when full.
func (s *EncryptedStore) Add(label int, acts *tensor.Tensor) error {
	if len(acts.Shape) < 2 || acts.Shape[0] != 1 {
		return errors.Errorf("sample activations must be a single-element batch, got shape %v", acts.Shape)
	}
	es := EncryptedSample{Label: label, Shape: append([]int{}, acts.Shape...)}

	slots := s.he.Slots()
	for off := 0; off < len(acts.Data); off += slots {
		end := off + slots
		if end > len(acts.Data) {
			end = len(acts.Data)
		}
		ct, err := s.he.EncryptSlice(acts.Data[off:end])
		if err != nil {
			return errors.Wrap(err, "encrypting activation chunk")
		}
		raw, err := ct.MarshalBinary()
		if err != nil {
			return errors.Wrap(err, "serializing ciphertext")
		}
		es.Chunks = append(es.Chunks, CiphertextPayload{
			Ciphertext: raw,
			Level:      ct.Level(),
			ScaleFloat: ct.Scale.Float64(),
		})
	}

	s.seen++
	if len(s.samples) < s.capacity {
		s.samples = append(s.samples, es)
		return nil
	}
	s.samples[s.rng.IntN(s.capacity)] = es
	return nil
}

// Get decrypts and returns the sample at index i.
func (s *EncryptedStore) Get(i int) (int, *tensor.Tensor, error) {
	if i < 0 || i >= len(s.samples) {
		return 0, nil, errors.Errorf("sample index %d out of range [0, %d)", i, len(s.samples))
	}
	es := s.samples[i]

	t := tensor.New(es.Shape...)
	slots := s.he.Slots()
	off := 0
	for _, chunk := range es.Chunks {
		var ct rlwe.Ciphertext
		if err := ct.UnmarshalBinary(chunk.Ciphertext); err != nil {
			return 0, nil, errors.Wrap(err, "deserializing ciphertext")
		}
		if ckkswrapper.NeedsRefresh(&ct, 1) {
			if err := s.he.RefreshInPlace(&ct); err != nil {
				return 0, nil, errors.Wrap(err, "refreshing stale ciphertext")
			}
		}
		n := slots
		if off+n > len(t.Data) {
			n = len(t.Data) - off
		}
		vals, err := s.he.DecryptSlice(&ct, n)
		if err != nil {
			return 0, nil, errors.Wrap(err, "decrypting activation chunk")
		}
		copy(t.Data[off:off+n], vals)
		off += n
	}
	if off != len(t.Data) {
		return 0, nil, errors.Errorf("sample %d decrypted to %d values, want %d", i, off, len(t.Data))
	}
	return es.Label, t, nil
}

// Batch decrypts n distinct stored samples and concatenates them along the
// batch axis.
func (s *EncryptedStore) Batch(n int) (*tensor.Tensor, []int, error) {
	if n <= 0 {
		return nil, nil, errors.Errorf("batch size must be positive, got %d", n)
	}
	if n > len(s.samples) {
		return nil, nil, errors.Errorf("batch of %d requested but only %d samples stored", n, len(s.samples))
	}
	perm := s.rng.Perm(len(s.samples))[:n]

	var acts *tensor.Tensor
	labels := make([]int, 0, n)
	for _, idx := range perm {
		label, t, err := s.Get(idx)
		if err != nil {
			return nil, nil, err
		}
		labels = append(labels, label)
		if acts == nil {
			acts = t
			continue
		}
		acts, err = tensor.Concat(acts, t)
		if err != nil {
			return nil, nil, errors.Wrap(err, "assembling replay batch")
		}
	}
	return acts, labels, nil
}

// Mean homomorphically averages all stored activations chunk by chunk, so
// the per-sample values are never decrypted individually, and returns the
// decrypted mean tensor. All stored samples must share one shape. The kit
// must come from the store's own context.
func (s *EncryptedStore) Mean(kit *ckkswrapper.ServerKit) (*tensor.Tensor, error) {
	if len(s.samples) == 0 {
		return nil, errors.New("no samples stored")
	}
	shape := s.samples[0].Shape
	for _, es := range s.samples[1:] {
		if !shapeEqual(shape, es.Shape) {
			return nil, errors.Errorf("stored shapes differ: %v vs %v", shape, es.Shape)
		}
	}

	out := tensor.New(shape...)
	slots := s.he.Slots()
	inv := 1.0 / float64(len(s.samples))
	off := 0
	for c := range s.samples[0].Chunks {
		var acc *rlwe.Ciphertext
		for _, es := range s.samples {
			ct := new(rlwe.Ciphertext)
			if err := ct.UnmarshalBinary(es.Chunks[c].Ciphertext); err != nil {
				return nil, errors.Wrap(err, "deserializing ciphertext")
			}
			if acc == nil {
				acc = ct
				continue
			}
			var err error
			acc, err = kit.Evaluator.AddNew(acc, ct)
			if err != nil {
				return nil, errors.Wrap(err, "accumulating chunk")
			}
		}
		scaled, err := kit.Evaluator.MulNew(acc, inv)
		if err != nil {
			return nil, errors.Wrap(err, "scaling accumulated chunk")
		}
		if err := kit.Evaluator.Rescale(scaled, scaled); err != nil {
			return nil, errors.Wrap(err, "rescaling mean chunk")
		}
		if ckkswrapper.NeedsRefresh(scaled, 1) {
			if err := s.he.RefreshInPlace(scaled); err != nil {
				return nil, errors.Wrap(err, "refreshing mean chunk")
			}
		}
		n := slots
		if off+n > len(out.Data) {
			n = len(out.Data) - off
		}
		vals, err := s.he.DecryptSlice(scaled, n)
		if err != nil {
			return nil, errors.Wrap(err, "decrypting mean chunk")
		}
		copy(out.Data[off:off+n], vals)
		off += n
	}
	return out, nil
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type savedStore struct {
	Capacity int
	Seen     int
	Samples  []EncryptedSample
}

// Save persists the encrypted samples to path with gob. Key material is not
// written; loading requires the original context.
func (s *EncryptedStore) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating store file")
	}
	defer f.Close()
	ss := savedStore{Capacity: s.capacity, Seen: s.seen, Samples: s.samples}
	if err := gob.NewEncoder(f).Encode(&ss); err != nil {
		return errors.Wrap(err, "encoding encrypted store")
	}
	log.WithFields(log.Fields{"path": path, "samples": len(s.samples)}).Info("saved encrypted replay store")
	return nil
}

// LoadEncryptedStore restores a store saved with Save, binding it to he for
// decryption.
func LoadEncryptedStore(path string, he *ckkswrapper.HeContext, seed uint64) (*EncryptedStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening store file")
	}
	defer f.Close()

	var ss savedStore
	if err := gob.NewDecoder(f).Decode(&ss); err != nil {
		return nil, errors.Wrap(err, "decoding encrypted store")
	}
	s, err := NewEncryptedStore(he, ss.Capacity, seed)
	if err != nil {
		return nil, err
	}
	s.seen = ss.Seen
	s.samples = ss.Samples
	return s, nil
}
