package layers

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/Bethhhh/ar1-go/nn"
)

// Init walks the module tree once and initializes every parameterized leaf
// according to its structural role:
//
//	depthwise conv weights    He normal, fan-in
//	stem/pointwise weights    He normal, fan-out
//	normalization             weight 1, bias 0
//	classifier                He normal fan-out, bias 0
//
// Conv biases, when present, are zeroed. The pass is deterministic for a
// given seed.
func Init(root nn.Module, seed uint64) {
	src := rand.NewSource(seed)
	initModule(root, src)
}

func initModule(m nn.Module, src rand.Source) {
	if c, ok := m.(nn.Composite); ok {
		for _, child := range c.Children() {
			initModule(child.Module, src)
		}
		return
	}
	switch l := m.(type) {
	case *Conv2D:
		fan := l.FanOut()
		if l.Role() == RoleDepthwise {
			fan = l.FanIn()
		}
		heNormal(l.W.Data, fan, src)
		if l.B != nil {
			zero(l.B.Data)
		}
	case *BatchNorm2D:
		fill(l.W.Data, 1)
		zero(l.B.Data)
	case *Linear:
		heNormal(l.W.Data, l.FanOut(), src)
		if l.B != nil {
			zero(l.B.Data)
		}
	}
}

// heNormal fills dst with draws from N(0, sqrt(2/fan)).
func heNormal(dst []float64, fan int, src rand.Source) {
	n := distuv.Normal{Mu: 0, Sigma: math.Sqrt(2.0 / float64(fan)), Src: src}
	for i := range dst {
		dst[i] = n.Rand()
	}
}

func fill(dst []float64, v float64) {
	for i := range dst {
		dst[i] = v
	}
}

func zero(dst []float64) { fill(dst, 0) }
