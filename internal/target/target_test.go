package target

import "testing"

func TestFromDifficultyMonotone(t *testing.T) {
	t.Parallel()
	low := FromDifficulty(1)
	high := FromDifficulty(1000)

	// A higher difficulty means a smaller (harder to meet) target.
	lowVal := toBigLE(low)
	highVal := toBigLE(high)
	if highVal.Cmp(lowVal) >= 0 {
		t.Errorf("target for difficulty 1000 should be smaller than for difficulty 1")
	}
}

func TestFromDifficultyOne(t *testing.T) {
	t.Parallel()
	got := FromDifficulty(1)
	want := fromBigBE(diff1)
	if got != want {
		t.Errorf("FromDifficulty(1) = %x, want %x", got, want)
	}
}

func TestSetTargetHexRoundTrip(t *testing.T) {
	t.Parallel()
	in := "00000000000000000000000000000000000000000000000000000000ffff0000"[:64]
	tg, err := FromSetTargetHex(in)
	if err != nil {
		t.Fatalf("FromSetTargetHex: %v", err)
	}
	if got := tg.Hex(); got != in {
		t.Errorf("Hex() = %s, want %s", got, in)
	}
}

func TestSetTargetHexInvalidLength(t *testing.T) {
	t.Parallel()
	if _, err := FromSetTargetHex("aabb"); err == nil {
		t.Errorf("expected error for short hex")
	}
}

func TestMeets(t *testing.T) {
	t.Parallel()
	var tg Target
	tg[31] = 0x10 // big-end byte of the target, little-endian storage

	tests := []struct {
		name string
		hash [32]byte
		want bool
	}{
		{"below target", func() [32]byte { var h [32]byte; h[31] = 0x05; return h }(), true},
		{"equal to target", func() [32]byte { var h [32]byte; h[31] = 0x10; return h }(), true},
		{"above target", func() [32]byte { var h [32]byte; h[31] = 0x20; return h }(), false},
	}
	for _, tt := range tests {
		if got := tg.Meets(tt.hash); got != tt.want {
			t.Errorf("%s: Meets() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDifficultyRoundTrip(t *testing.T) {
	t.Parallel()
	tg := FromDifficulty(2.5)
	d := tg.Difficulty()
	if d < 2.4 || d > 2.6 {
		t.Errorf("Difficulty() = %v, want ~2.5", d)
	}
}
