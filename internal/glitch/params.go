// Package glitch implements the ten-parameter analog distortion program:
// a per-pixel fragment evaluator producing wave warp, tracking noise,
// glitch bands, chromatic aberration, color rotation, static, and scanlines
// over decoded video frames.
package glitch

// Params holds the ten effect scalars consumed by the fragment program.
// Values are written through unvalidated; range enforcement belongs to the
// caller supplying them (see Ranges). Out-of-range values degrade the
// picture, they never error.
type Params struct {
	WaveIntensity       float64
	WaveFrequency       float64
	ColorShift          float64
	Speed               float64
	GlitchAmount        float64
	ScanlineIntensity   float64
	StaticAmount        float64
	TrackingNoiseAmount float64
	ChromaticAberration float64
	VerticalJitter      float64
}

// Defaults returns the stock parameter set.
func Defaults() Params {
	return Params{
		WaveIntensity:       0.02,
		WaveFrequency:       40,
		ColorShift:          0,
		Speed:               2,
		GlitchAmount:        0,
		ScanlineIntensity:   0.1,
		StaticAmount:        0.05,
		TrackingNoiseAmount: 0.1,
		ChromaticAberration: 0.002,
		VerticalJitter:      0.001,
	}
}

// Range describes the declared bounds for one parameter. The bounds are
// advisory metadata for callers building control surfaces; the program
// itself accepts any value.
type Range struct {
	Name    string
	Min     float64
	Max     float64
	Step    float64
	Default float64
}

// Ranges returns the declared bounds for all ten parameters, in evaluation
// order.
func Ranges() []Range {
	return []Range{
		{Name: "waveIntensity", Min: 0, Max: 0.1, Step: 0.001, Default: 0.02},
		{Name: "waveFrequency", Min: 1, Max: 100, Step: 1, Default: 40},
		{Name: "colorShift", Min: 0, Max: 6.28, Step: 0.01, Default: 0},
		{Name: "speed", Min: 0.1, Max: 10, Step: 0.1, Default: 2},
		{Name: "glitchAmount", Min: 0, Max: 0.2, Step: 0.001, Default: 0},
		{Name: "scanlineIntensity", Min: 0, Max: 0.5, Step: 0.01, Default: 0.1},
		{Name: "staticAmount", Min: 0, Max: 0.2, Step: 0.01, Default: 0.05},
		{Name: "trackingNoiseAmount", Min: 0, Max: 0.5, Step: 0.01, Default: 0.1},
		{Name: "chromaticAberration", Min: 0, Max: 0.01, Step: 0.0001, Default: 0.002},
		{Name: "verticalJitter", Min: 0, Max: 0.005, Step: 0.0001, Default: 0.001},
	}
}
