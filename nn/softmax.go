package nn

import (
	"math"

	"github.com/Bethhhh/ar1-go/tensor"
)

// Softmax applies the softmax function along the last axis. A 1-D tensor is
// treated as a single row of logits.
func Softmax(logits *tensor.Tensor) *tensor.Tensor {
	rows, cols := 1, len(logits.Data)
	if len(logits.Shape) == 2 {
		rows, cols = logits.Shape[0], logits.Shape[1]
	}
	out := tensor.New(logits.Shape...)
	for r := 0; r < rows; r++ {
		row := logits.Data[r*cols : (r+1)*cols]
		maxLogit := row[0]
		for _, v := range row {
			if v > maxLogit {
				maxLogit = v
			}
		}
		expSum := 0.0
		exps := out.Data[r*cols : (r+1)*cols]
		for i, v := range row {
			e := math.Exp(v - maxLogit)
			exps[i] = e
			expSum += e
		}
		for i := range exps {
			exps[i] /= expSum
		}
	}
	return out
}
