package glitch

import (
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Program evaluates the distortion fragment program over full frames.
// It holds no per-frame state: everything a frame needs arrives through the
// Uniforms value, so one Program can be shared across resolutions and
// parameter changes without recompilation.
type Program struct {
	workers int
}

// NewProgram returns a Program that shades rows across all available CPUs.
func NewProgram() *Program {
	return &Program{workers: runtime.GOMAXPROCS(0)}
}

// hash21 is the standard GLSL one-liner noise hash, mapping a 2D coordinate
// to a deterministic pseudo-random value in [0, 1).
func hash21(x, y float64) float64 {
	s := math.Sin(x*12.9898+y*78.233) * 43758.5453
	return s - math.Floor(s)
}

// hueMatrix builds the 3x3 rotation of RGB space around the gray axis by
// angle radians.
func hueMatrix(angle float64) [3][3]float64 {
	c := math.Cos(angle)
	s := math.Sin(angle)
	k := (1 - c) / 3
	q := math.Sqrt(1.0/3.0) * s
	return [3][3]float64{
		{c + k, k - q, k + q},
		{k + q, c + k, k - q},
		{k - q, k + q, c + k},
	}
}

// sample reads the source pixel nearest to (u, v), clamping to the frame
// edge, and returns the channel values normalized to [0, 1].
func sample(src *image.RGBA, sw, sh int, u, v float64) (r, g, b float64) {
	x := int(u * float64(sw))
	y := int(v * float64(sh))
	if x < 0 {
		x = 0
	} else if x >= sw {
		x = sw - 1
	}
	if y < 0 {
		y = 0
	} else if y >= sh {
		y = sh - 1
	}
	o := src.PixOffset(src.Rect.Min.X+x, src.Rect.Min.Y+y)
	return float64(src.Pix[o]) / 255, float64(src.Pix[o+1]) / 255, float64(src.Pix[o+2]) / 255
}

func clampByte(v float64) uint8 {
	v = v * 255
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// Render evaluates the fragment program for every pixel of dst, sampling
// from src. The stage order is fixed and later stages consume earlier
// results: vertical jitter, wave offset, tracking-noise line offset, glitch
// band offset, combined UV; per-channel chromatic sampling; color rotation;
// additive static; scanline attenuation; 10% luma desaturation; brightness
// pulse. All stages are per-pixel, so rows are shaded in parallel.
func (p *Program) Render(dst, src *image.RGBA, u Uniforms) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	if w == 0 || h == 0 || sw == 0 || sh == 0 {
		return
	}

	t := u.Time
	jitterY := (hash21(t*7.13, 3.71)*2 - 1) * u.VerticalJitter
	rot := hueMatrix(u.ColorShift)
	pulse := 1 + 0.02*math.Sin(t*3)

	g := new(errgroup.Group)
	g.SetLimit(p.workers)

	rows := h/p.workers + 1
	for start := 0; start < h; start += rows {
		start := start
		end := start + rows
		if end > h {
			end = h
		}
		g.Go(func() error {
			p.shadeRows(dst, src, u, start, end, jitterY, rot, pulse)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Program) shadeRows(dst, src *image.RGBA, u Uniforms, y0, y1 int, jitterY float64, rot [3][3]float64, pulse float64) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	t := u.Time

	for y := y0; y < y1; y++ {
		uvY := (float64(y)+0.5)/float64(h) + jitterY

		// Row-constant offsets: the wave is a function of vertical
		// position, frequency, time, and speed; tracking noise and glitch
		// bands displace whole lines.
		waveX := math.Sin(uvY*u.WaveFrequency+t*u.Speed) * u.WaveIntensity

		trackX := 0.0
		line := math.Floor(uvY * u.ResY)
		if tn := hash21(line, math.Floor(t*3)); tn < u.TrackingNoiseAmount*0.3 {
			trackX = (hash21(line+1, t) - 0.5) * 0.1
		}

		glitchX := 0.0
		band := math.Floor(uvY * 16)
		if gn := hash21(band, math.Floor(t*10)); gn < u.GlitchAmount*4 {
			glitchX = (hash21(band+7, math.Floor(t*10)) - 0.5) * u.GlitchAmount * 2
		}

		rowOff := dst.PixOffset(dst.Rect.Min.X, dst.Rect.Min.Y+y)
		scanline := 1 - u.ScanlineIntensity*(0.5+0.5*math.Sin(uvY*u.ResY*math.Pi))

		for x := 0; x < w; x++ {
			uvX := (float64(x)+0.5)/float64(w) + waveX + trackX + glitchX

			// Independent per-channel chromatic sampling.
			r, _, _ := sample(src, sw, sh, uvX+u.ChromaticAberration, uvY)
			_, gg, _ := sample(src, sw, sh, uvX, uvY)
			_, _, b := sample(src, sw, sh, uvX-u.ChromaticAberration, uvY)

			cr := rot[0][0]*r + rot[0][1]*gg + rot[0][2]*b
			cg := rot[1][0]*r + rot[1][1]*gg + rot[1][2]*b
			cb := rot[2][0]*r + rot[2][1]*gg + rot[2][2]*b

			static := (hash21(uvX*u.ResX+t*91.7, uvY*u.ResY) - 0.5) * u.StaticAmount
			cr += static
			cg += static
			cb += static

			cr *= scanline
			cg *= scanline
			cb *= scanline

			luma := 0.299*cr + 0.587*cg + 0.114*cb
			cr = cr*0.9 + luma*0.1
			cg = cg*0.9 + luma*0.1
			cb = cb*0.9 + luma*0.1

			o := rowOff + x*4
			dst.Pix[o] = clampByte(cr * pulse)
			dst.Pix[o+1] = clampByte(cg * pulse)
			dst.Pix[o+2] = clampByte(cb * pulse)
			dst.Pix[o+3] = 255
		}
	}
}
