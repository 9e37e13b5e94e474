package vectorstore

import "testing"

func TestSerializeRoundTrip(t *testing.T) {
	vec := []float32{0.1, -0.2, 0.3, 0.0, 1.0, -1.0}
	data := SerializeVector(vec)
	got := DeserializeVector(data)
	if len(got) != len(vec) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Fatalf("got[%d] = %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestSerializeRoundTrip768(t *testing.T) {
	vec := make([]float32, 768)
	for i := range vec {
		vec[i] = float32(i%100) / 100
	}
	data := SerializeVector(vec)
	if len(data) != 768*4 {
		t.Fatalf("serialized length = %d, want %d", len(data), 768*4)
	}
	got := DeserializeVector(data)
	if len(got) != 768 {
		t.Fatalf("len(got) = %d, want 768", len(got))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Fatalf("got[%d] = %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestDeserializeEmpty(t *testing.T) {
	if got := DeserializeVector(nil); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestDeserializeMisalignedLength(t *testing.T) {
	if got := DeserializeVector([]byte{1, 2, 3}); got != nil {
		t.Fatalf("expected nil for length not a multiple of 4, got %v", got)
	}
}

func TestFoldSeedRoundTrip(t *testing.T) {
	for _, h := range []uint32{0, 1, 42, 1 << 31, 0xFFFFFFFF} {
		f := FoldSeed(h)
		if f < 0 || f >= 1 {
			t.Fatalf("FoldSeed(%d) = %v, want in [0,1)", h, f)
		}
		back := unfoldSeed(f)
		// float64 has 53 bits of mantissa, comfortably more than the 32
		// bits round-tripped here, but allow a small tolerance rather than
		// demanding bit-exact equality.
		diff := int64(back) - int64(h)
		if diff < -2 || diff > 2 {
			t.Fatalf("unfoldSeed(FoldSeed(%d)) = %d, too far off", h, back)
		}
	}
}
