package cpufeature

import "testing"

func TestDetectMatchesSupported(t *testing.T) {
	t.Parallel()
	r := Detect()
	want := r.AES && r.AVX && r.PCLMULQDQ
	if got := Supported(); got != want {
		t.Errorf("Supported() = %v, want %v (derived from Detect())", got, want)
	}
}

func TestDetectIsStable(t *testing.T) {
	t.Parallel()
	a := Detect()
	b := Detect()
	if a != b {
		t.Errorf("Detect() returned different results on consecutive calls: %+v != %+v", a, b)
	}
}
