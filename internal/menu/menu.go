// Package menu renders the idle title screen shown while no simulation is
// active, so the surface always presents valid frames. Static geometry
// plus a LUT sweep; no compute work.
package menu

import (
	"math"

	"github.com/san-kum/fluxlab/internal/gpu"
	"github.com/san-kum/fluxlab/internal/lut"
)

type Renderer struct {
	colors []float32 // 256 RGBA stops
	time   float64
}

// New samples the given table for the background sweep. A missing table
// falls back to grayscale so the menu can always draw.
func New(reg *lut.Registry, tableName string) *Renderer {
	colors, err := reg.ToLinearArray(tableName, false)
	if err != nil {
		colors, _ = reg.ToLinearArray("grayscale", false)
	}
	return &Renderer{colors: colors}
}

// Render fills the frame with a slow diagonal LUT sweep and a darkened
// center band where the shell draws the title.
func (r *Renderer) Render(frame *gpu.Frame, dt float64) {
	r.time += dt
	w, h := frame.Width, frame.Height
	if w <= 0 || h <= 0 {
		return
	}
	phase := math.Mod(r.time*0.05, 1.0)

	for y := 0; y < h; y++ {
		fy := float64(y) / float64(h)
		band := 1.0
		if fy > 0.42 && fy < 0.58 {
			band = 0.35
		}
		for x := 0; x < w; x++ {
			fx := float64(x) / float64(w)
			v := math.Mod(fx*0.5+fy*0.5+phase, 1.0)
			idx := int(v * 255)
			o := (y*w + x) * 4
			frame.Pixels[o+0] = byte(float64(r.colors[idx*4+0]) * band * 255)
			frame.Pixels[o+1] = byte(float64(r.colors[idx*4+1]) * band * 255)
			frame.Pixels[o+2] = byte(float64(r.colors[idx*4+2]) * band * 255)
			frame.Pixels[o+3] = 255
		}
	}
}
