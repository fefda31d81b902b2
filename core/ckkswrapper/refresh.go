package ckkswrapper

import (
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

// Refresh restores a ciphertext to the maximum level and default scale by
// decrypting and re-encrypting through the slice helpers. It requires the
// secret key, so it stands in for real bootstrapping during development;
// stored ciphertexts that went through homomorphic aggregation are refreshed
// this way before they run out of levels.
func (h *HeContext) Refresh(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	vals, err := h.DecryptSlice(ct, h.Slots())
	if err != nil {
		return nil, err
	}
	return h.EncryptSlice(vals)
}

// RefreshInPlace refreshes a ciphertext in place.
func (h *HeContext) RefreshInPlace(ct *rlwe.Ciphertext) error {
	refreshed, err := h.Refresh(ct)
	if err != nil {
		return err
	}
	*ct = *refreshed
	return nil
}

// NeedsRefresh reports whether the ciphertext level is at or below the
// threshold. A threshold of zero or less means one level remaining.
func NeedsRefresh(ct *rlwe.Ciphertext, threshold int) bool {
	if threshold <= 0 {
		threshold = 1
	}
	return ct.Level() <= threshold
}
