package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDollarsFromCents(t *testing.T) {
	tests := []struct {
		name  string
		cents int64
		want  int64
	}{
		{"zero", 0, 0},
		{"negative", -500, 0},
		{"exact dollar", 100, 1},
		{"five dollars", 500, 5},
		{"rounds down below half", 549, 5},
		{"rounds up at half", 550, 6},
		{"large", 123450, 1235}, // 1234.50 rounds up
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DollarsFromCents(tt.cents))
		})
	}
}

func TestRule_Panels(t *testing.T) {
	r := Rule{PackPriceDollars: 5, PanelsPerPack: 50}

	tests := []struct {
		name    string
		dollars int64
		want    int64
	}{
		{"zero", 0, 0},
		{"below minimum", 1, 0},
		{"just below pack", 4, 0},
		{"one pack", 5, 50},
		{"partial second pack", 9, 50},
		{"two packs", 10, 100},
		{"many packs", 100, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Panels(tt.dollars))
		})
	}
}

func TestRule_Monotonic(t *testing.T) {
	r := Default

	var prev int64
	for d := int64(0); d <= 100; d++ {
		got := r.Panels(d)
		assert.GreaterOrEqual(t, got, prev, "panels must never decrease as dollars grow (at $%d)", d)
		prev = got
	}
}

func TestRule_Deterministic(t *testing.T) {
	r := Default
	for i := 0; i < 10; i++ {
		assert.Equal(t, r.Panels(25), r.Panels(25))
	}
}

func TestRule_DegenerateConfig(t *testing.T) {
	assert.Equal(t, int64(0), Rule{PackPriceDollars: 0, PanelsPerPack: 50}.Panels(100))
	assert.Equal(t, int64(0), Rule{PackPriceDollars: 5, PanelsPerPack: 0}.Panels(100))
}

func TestRule_PanelsFromCents(t *testing.T) {
	r := Default

	// $5.00 checkout grants one pack
	assert.Equal(t, int64(50), r.PanelsFromCents(500))
	// $1.00 is below the minimum pack price
	assert.Equal(t, int64(0), r.PanelsFromCents(100))
}
