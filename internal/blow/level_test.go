package blow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelAveragesLowBins(t *testing.T) {
	spectrum := []uint8{100, 50, 0, 255, 255, 255}
	assert.Equal(t, 50.0, Level(spectrum, 3))
	assert.Equal(t, 75.0, Level(spectrum, 2))
}

func TestLevelStaysInRange(t *testing.T) {
	full := make([]uint8, 128)
	for i := range full {
		full[i] = 255
	}
	assert.Equal(t, float64(MaxLevel), Level(full, 128))
	assert.Equal(t, 0.0, Level(make([]uint8, 128), 32))
	assert.Equal(t, 0.0, Level(nil, 4))
	assert.Equal(t, float64(MaxLevel), Level(full, 1000), "n is clamped to the spectrum")
}

func TestSubBandBins(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 32, cfg.subBandBins(128))

	cfg.SubBand = 0.5
	assert.Equal(t, 64, cfg.subBandBins(128))

	cfg.SubBand = 0.001
	assert.Equal(t, 1, cfg.subBandBins(128))
}

func TestMeterPercent(t *testing.T) {
	tests := []struct {
		level float64
		want  int
	}{
		{0, 0},
		{10, 30},
		{33.4, 100},
		{255, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MeterPercent(tt.level, DefaultMeterScale), "level %v", tt.level)
	}
}

func TestKindOfNil(t *testing.T) {
	assert.Equal(t, FailureNone, KindOf(nil))
	assert.Equal(t, "permission_denied", FailurePermissionDenied.String())
}
