package lut

// ramp is a compact gradient definition baked into a 256-stop table at
// registry construction.
type ramp struct {
	stops []rampStop
}

type rampStop struct {
	pos     float32
	r, g, b float32
}

func (rm ramp) bake() []float32 {
	out := make([]float32, Stops*4)
	for i := 0; i < Stops; i++ {
		t := float32(i) / float32(Stops-1)
		r, g, b := rm.at(t)
		out[i*4+0] = r
		out[i*4+1] = g
		out[i*4+2] = b
		out[i*4+3] = 1
	}
	return out
}

func (rm ramp) at(t float32) (float32, float32, float32) {
	s := rm.stops
	if t <= s[0].pos {
		return s[0].r, s[0].g, s[0].b
	}
	for i := 1; i < len(s); i++ {
		if t <= s[i].pos {
			span := s[i].pos - s[i-1].pos
			f := float32(0)
			if span > 0 {
				f = (t - s[i-1].pos) / span
			}
			return lerp(s[i-1].r, s[i].r, f), lerp(s[i-1].g, s[i].g, f), lerp(s[i-1].b, s[i].b, f)
		}
	}
	last := s[len(s)-1]
	return last.r, last.g, last.b
}

func lerp(a, b, f float32) float32 { return a + (b-a)*f }

var builtinRamps = map[string]ramp{
	"viridis": {stops: []rampStop{
		{0.00, 0.267, 0.005, 0.329},
		{0.25, 0.229, 0.322, 0.545},
		{0.50, 0.128, 0.567, 0.551},
		{0.75, 0.369, 0.789, 0.383},
		{1.00, 0.993, 0.906, 0.144},
	}},
	"inferno": {stops: []rampStop{
		{0.00, 0.001, 0.000, 0.014},
		{0.25, 0.342, 0.062, 0.429},
		{0.50, 0.729, 0.212, 0.333},
		{0.75, 0.975, 0.557, 0.184},
		{1.00, 0.988, 0.998, 0.645},
	}},
	"magma": {stops: []rampStop{
		{0.00, 0.001, 0.000, 0.016},
		{0.25, 0.316, 0.072, 0.485},
		{0.50, 0.716, 0.215, 0.475},
		{0.75, 0.986, 0.535, 0.382},
		{1.00, 0.987, 0.991, 0.750},
	}},
	"plasma": {stops: []rampStop{
		{0.00, 0.050, 0.030, 0.528},
		{0.25, 0.494, 0.012, 0.658},
		{0.50, 0.798, 0.280, 0.470},
		{0.75, 0.973, 0.586, 0.252},
		{1.00, 0.940, 0.975, 0.131},
	}},
	"ocean": {stops: []rampStop{
		{0.00, 0.000, 0.102, 0.200},
		{0.40, 0.000, 0.467, 0.745},
		{0.70, 0.000, 0.659, 0.800},
		{1.00, 0.878, 0.941, 1.000},
	}},
	"sunset": {stops: []rampStop{
		{0.00, 0.176, 0.106, 0.180},
		{0.35, 1.000, 0.420, 0.420},
		{0.70, 0.996, 0.792, 0.341},
		{1.00, 1.000, 0.961, 0.961},
	}},
	"phosphor": {stops: []rampStop{
		{0.00, 0.000, 0.067, 0.000},
		{0.50, 0.000, 0.800, 0.000},
		{1.00, 0.533, 1.000, 0.533},
	}},
	"grayscale": {stops: []rampStop{
		{0.00, 0.000, 0.000, 0.000},
		{1.00, 1.000, 1.000, 1.000},
	}},
	"rainbow": {stops: []rampStop{
		{0.00, 1.000, 0.000, 0.000},
		{0.20, 1.000, 1.000, 0.000},
		{0.40, 0.000, 1.000, 0.000},
		{0.60, 0.000, 1.000, 1.000},
		{0.80, 0.000, 0.000, 1.000},
		{1.00, 1.000, 0.000, 1.000},
	}},
}

// DefaultName is the table bound when a simulation does not ask for one.
const DefaultName = "viridis"
