package roundtrip

import (
	"testing"
	"time"
)

func TestFillRandomDeterministic(t *testing.T) {
	a := make([]byte, 1024)
	b := make([]byte, 1024)
	FillRandom(a, 7)
	FillRandom(b, 7)
	if Diverges(a, b) {
		t.Fatal("same seed produced different bytes")
	}
	for i, v := range a {
		if v == 255 {
			t.Fatalf("byte %d is 255, want values in [0, 254]", i)
		}
	}

	FillRandom(b, 8)
	if !Diverges(a, b) {
		t.Error("different seeds produced identical bytes")
	}
}

func TestDiverges(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		out  []byte
		want bool
	}{
		{"equal", []byte{1, 2, 3}, []byte{1, 2, 3}, false},
		{"last byte", []byte{1, 2, 3}, []byte{1, 2, 4}, true},
		{"first byte", []byte{0, 2, 3}, []byte{1, 2, 3}, true},
		{"empty", nil, []byte{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Diverges(tt.in, tt.out); got != tt.want {
				t.Errorf("Diverges() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeCPUCopy(t *testing.T) {
	src := []byte("hello world")
	dst := make([]byte, len(src))
	if d := TimeCPUCopy(dst, src); d < 0 {
		t.Errorf("negative duration %v", d)
	}
	if string(dst) != "hello world" {
		t.Errorf("dst = %q", dst)
	}
}

func TestDigest(t *testing.T) {
	a := Digest([]byte("abc"))
	if len(a) != 64 {
		t.Fatalf("digest length = %d, want 64", len(a))
	}
	if a != Digest([]byte("abc")) {
		t.Error("digest is not stable")
	}
	if a == Digest([]byte("abd")) {
		t.Error("distinct inputs share a digest")
	}
}

func TestMillis(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int64
	}{
		{0, 0},
		{499 * time.Microsecond, 0},
		{500 * time.Microsecond, 1},
		{1499 * time.Microsecond, 1},
		{1500 * time.Microsecond, 2},
		{42 * time.Millisecond, 42},
	}
	for _, tt := range tests {
		if got := Millis(tt.d); got != tt.want {
			t.Errorf("Millis(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got := DefaultConfig().WorkloadBytes(); got != 33177600 {
		t.Errorf("WorkloadBytes() = %d, want 33177600", got)
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty path", func(c *Config) { c.KernelPath = "" }},
		{"empty name", func(c *Config) { c.KernelName = "" }},
		{"zero global", func(c *Config) { c.GlobalSize = 0 }},
		{"negative local", func(c *Config) { c.LocalSize = -1 }},
		{"not a multiple", func(c *Config) { c.GlobalSize = 1000; c.LocalSize = 64 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
