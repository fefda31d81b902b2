// Package ckkswrapper wraps the lattigo CKKS scheme behind a small context
// type holding the parameters and keys used to encrypt stored activations.
package ckkswrapper

import (
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// DefaultLogN is the ring degree used when none is given. LogN 14 gives
// 8192 slots, enough for one activation chunk per ciphertext.
const DefaultLogN = 14

// HeContext bundles CKKS parameters with the key material needed for
// encoding, encryption and decryption.
type HeContext struct {
	Params    ckks.Parameters
	Sk        *rlwe.SecretKey
	Pk        *rlwe.PublicKey
	Encoder   *ckks.Encoder
	Encryptor *rlwe.Encryptor
	Decryptor *rlwe.Decryptor
}

// ServerKit carries the evaluation side of a context: an evaluator with
// relinearization and rotation keys, but no secret key material beyond it.
type ServerKit struct {
	Evaluator *ckks.Evaluator
}

// NewHeContext creates a context with the default ring degree. It panics if
// the fixed parameter literal is rejected, which indicates a programming
// error rather than a runtime condition.
func NewHeContext() *HeContext {
	h, err := NewHeContextWithLogN(DefaultLogN)
	if err != nil {
		panic(err)
	}
	return h
}

// NewHeContextWithLogN creates a context with ring degree 2^logN.
func NewHeContextWithLogN(logN int) (*HeContext, error) {
	params, err := ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
		LogN:            logN,
		LogQ:            []int{55, 40, 40, 40, 40, 40},
		LogP:            []int{61},
		LogDefaultScale: 40,
	})
	if err != nil {
		return nil, err
	}

	kgen := rlwe.NewKeyGenerator(params)
	sk := kgen.GenSecretKeyNew()
	pk := kgen.GenPublicKeyNew(sk)

	return &HeContext{
		Params:    params,
		Sk:        sk,
		Pk:        pk,
		Encoder:   ckks.NewEncoder(params),
		Encryptor: rlwe.NewEncryptor(params, pk),
		Decryptor: rlwe.NewDecryptor(params, sk),
	}, nil
}

// GenServerKit derives an evaluator keyed for multiplication and the given
// rotations.
func (h *HeContext) GenServerKit(rotations []int) *ServerKit {
	kgen := rlwe.NewKeyGenerator(h.Params)
	rlk := kgen.GenRelinearizationKeyNew(h.Sk)

	galEls := make([]uint64, 0, len(rotations))
	for _, rot := range rotations {
		galEls = append(galEls, h.Params.GaloisElement(rot))
	}
	gks := kgen.GenGaloisKeysNew(galEls, h.Sk)

	evk := rlwe.NewMemEvaluationKeySet(rlk, gks...)
	return &ServerKit{Evaluator: ckks.NewEvaluator(h.Params, evk)}
}

// Slots returns the number of plaintext slots per ciphertext.
func (h *HeContext) Slots() int { return h.Params.MaxSlots() }

// EncryptSlice encrypts up to Slots() real values into one ciphertext.
func (h *HeContext) EncryptSlice(values []float64) (*rlwe.Ciphertext, error) {
	pt := ckks.NewPlaintext(h.Params, h.Params.MaxLevel())
	if err := h.Encoder.Encode(values, pt); err != nil {
		return nil, err
	}
	return h.Encryptor.EncryptNew(pt)
}

// DecryptSlice decrypts a ciphertext and returns the first n real values.
func (h *HeContext) DecryptSlice(ct *rlwe.Ciphertext, n int) ([]float64, error) {
	pt := h.Decryptor.DecryptNew(ct)
	decoded := make([]float64, h.Params.MaxSlots())
	if err := h.Encoder.Decode(pt, decoded); err != nil {
		return nil, err
	}
	return decoded[:n], nil
}
