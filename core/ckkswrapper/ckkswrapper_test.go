package ckkswrapper

import (
	"testing"

	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

func TestHeContextRoundTrip(t *testing.T) {
	h := NewHeContext()
	vals := []complex128{3.1415926535}
	slots := h.Params.MaxSlots()
	pt := ckks.NewPlaintext(h.Params, h.Params.MaxLevel())
	err := h.Encoder.Encode(vals, pt)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	ct, err := h.Encryptor.EncryptNew(pt)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	gotPt := h.Decryptor.DecryptNew(ct)
	decoded := make([]complex128, slots)
	err = h.Encoder.Decode(gotPt, decoded)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if diff := real(decoded[0]) - real(vals[0]); diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("roundtrip mismatch: got %f, want %f", real(decoded[0]), real(vals[0]))
	}

	kit := h.GenServerKit([]int{1, 2, -1})
	ct2, err := kit.Evaluator.MulNew(ct, ct)
	if err != nil {
		t.Fatalf("evaluator MulNew error: %v", err)
	}
	_ = ct2
}

func TestEncryptSliceRoundTrip(t *testing.T) {
	h := NewHeContext()
	vals := []float64{0.5, -1.25, 3.75, 0}

	ct, err := h.EncryptSlice(vals)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	got, err := h.DecryptSlice(ct, len(vals))
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}
	for i, want := range vals {
		if diff := got[i] - want; diff > 1e-4 || diff < -1e-4 {
			t.Fatalf("slot %d: got %f, want %f", i, got[i], want)
		}
	}
}

func TestRefreshRestoresLevel(t *testing.T) {
	h := NewHeContext()

	ct, err := h.EncryptSlice([]float64{1.5})
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	kit := h.GenServerKit(nil)
	dropped, err := kit.Evaluator.MulRelinNew(ct, ct)
	if err != nil {
		t.Fatalf("mul error: %v", err)
	}
	if err := kit.Evaluator.Rescale(dropped, dropped); err != nil {
		t.Fatalf("rescale error: %v", err)
	}
	if dropped.Level() >= h.Params.MaxLevel() {
		t.Fatalf("expected level drop, still at %d", dropped.Level())
	}

	if err := h.RefreshInPlace(dropped); err != nil {
		t.Fatalf("refresh error: %v", err)
	}
	if dropped.Level() != h.Params.MaxLevel() {
		t.Fatalf("refresh left level %d, want %d", dropped.Level(), h.Params.MaxLevel())
	}
	got, err := h.DecryptSlice(dropped, 1)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}
	if diff := got[0] - 2.25; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("refresh changed value: got %f, want 2.25", got[0])
	}
}

func TestNeedsRefresh(t *testing.T) {
	h := NewHeContext()
	ct, err := h.EncryptSlice([]float64{1})
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	if NeedsRefresh(ct, 1) {
		t.Fatal("fresh ciphertext should not need refreshing")
	}
	if !NeedsRefresh(ct, h.Params.MaxLevel()) {
		t.Fatal("threshold at max level should trigger")
	}
}
