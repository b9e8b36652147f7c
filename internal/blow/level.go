package blow

// MaxLevel is the top of the level scale, matching 8-bit bin magnitudes
const MaxLevel = 255

// DefaultMeterScale maps the level onto a percentage meter
const DefaultMeterScale = 3

// Level is the mean of the first n bins of spectrum, in [0, MaxLevel]
func Level(spectrum []uint8, n int) float64 {
	if n > len(spectrum) {
		n = len(spectrum)
	}
	if n <= 0 {
		return 0
	}
	var sum int
	for _, v := range spectrum[:n] {
		sum += int(v)
	}
	return float64(sum) / float64(n)
}

// MeterPercent converts a level to a meter fill: min(level*scale, 100)
func MeterPercent(level, scale float64) int {
	p := level * scale
	switch {
	case p <= 0:
		return 0
	case p >= 100:
		return 100
	default:
		return int(p)
	}
}
