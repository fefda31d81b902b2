// Package modelstore persists and restores model parameters as JSON
// snapshots, and fetches published snapshots into a user-local store.
package modelstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Bethhhh/ar1-go/nn"
)

// WeightData is one serialized parameter tensor.
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// ModelWeights is a full parameter snapshot, keyed by the structural
// parameter path (for example "features/init_block/conv/weight"). Buffers
// such as running statistics are included.
type ModelWeights struct {
	Version string                 `json:"version"`
	Params  map[string]*WeightData `json:"params"`
}

// FormatVersion tags snapshots written by this package.
const FormatVersion = "1.0"

// Snapshot captures every parameter reachable from root.
func Snapshot(root nn.Module) *ModelWeights {
	w := &ModelWeights{
		Version: FormatVersion,
		Params:  make(map[string]*WeightData),
	}
	for _, p := range nn.NamedParams("", root) {
		w.Params[p.Name] = &WeightData{
			Name:  p.Name,
			Shape: append([]int{}, p.Data.Shape...),
			Data:  append([]float64{}, p.Data.Data...),
		}
	}
	return w
}

// Save writes a snapshot to path as indented JSON.
func Save(path string, w *ModelWeights) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling weights")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating weights directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "writing weights file")
	}
	return nil
}

// Load reads a snapshot from path.
func Load(path string) (*ModelWeights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading weights file")
	}
	var w ModelWeights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrapf(err, "unmarshaling weights from %s", path)
	}
	return &w, nil
}

// Apply copies stored parameters into the matching parameters of root.
// A shape mismatch is an error. Parameters absent from the snapshot and
// stored entries with no matching parameter are logged and skipped.
func Apply(root nn.Module, w *ModelWeights) error {
	used := make(map[string]bool, len(w.Params))
	for _, p := range nn.NamedParams("", root) {
		wd, ok := w.Params[p.Name]
		if !ok {
			log.WithField("param", p.Name).Warn("no stored weights for parameter")
			continue
		}
		used[p.Name] = true
		if !shapeEqual(p.Data.Shape, wd.Shape) {
			return errors.Errorf("parameter %s: stored shape %v does not match model shape %v",
				p.Name, wd.Shape, p.Data.Shape)
		}
		copy(p.Data.Data, wd.Data)
	}
	for name := range w.Params {
		if !used[name] {
			log.WithField("param", name).Warn("stored weights match no model parameter")
		}
	}
	return nil
}

// LoadInto loads the snapshot <root>/<name>.json and applies it. When the
// file is absent and a base URL is configured, the snapshot is fetched first.
func LoadInto(m nn.Module, name, rootDir string) error {
	path := ModelPath(name, rootDir)
	if _, err := os.Stat(path); os.IsNotExist(err) && DefaultBaseURL != "" {
		if path, err = Fetch(context.Background(), name, rootDir, ""); err != nil {
			return err
		}
	}
	w, err := Load(path)
	if err != nil {
		return err
	}
	return Apply(m, w)
}

// ModelPath returns the on-disk location of a named snapshot under rootDir.
func ModelPath(name, rootDir string) string {
	return filepath.Join(rootDir, name+".json")
}

// DefaultRoot returns the user-local model store directory.
func DefaultRoot() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "resolving home directory")
	}
	return filepath.Join(home, ".ar1", "models"), nil
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

