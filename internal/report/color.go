package report

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/stopcensus/internal/metrics"
	"github.com/sells-group/stopcensus/internal/model"
)

// Scale maps a metric's [Min, Max] range linearly onto a colour ramp.
type Scale struct {
	Min, Max float64
	ramp     []color.RGBA
}

// NewScale builds a scale over the metric's observed range.
func NewScale(s metrics.Summary, ramp []string) (Scale, error) {
	sc := Scale{Min: s.Min, Max: s.Max}
	for _, h := range ramp {
		c, err := parseHex(h)
		if err != nil {
			return Scale{}, err
		}
		sc.ramp = append(sc.ramp, c)
	}
	if len(sc.ramp) == 0 {
		return Scale{}, eris.New("report: empty colour ramp")
	}
	return sc, nil
}

// Color returns the hex fill for v, or NullColor when v is missing.
func (s Scale) Color(v model.Nullable) string {
	if !v.Valid {
		return NullColor
	}
	return toHex(s.At(v.Value))
}

// At interpolates the ramp at v.
func (s Scale) At(v float64) color.RGBA {
	if len(s.ramp) == 1 {
		return s.ramp[0]
	}
	t := 0.0
	if s.Max > s.Min {
		t = (v - s.Min) / (s.Max - s.Min)
	}
	t = math.Max(0, math.Min(1, t))

	pos := t * float64(len(s.ramp)-1)
	i := int(math.Floor(pos))
	if i >= len(s.ramp)-1 {
		return s.ramp[len(s.ramp)-1]
	}
	f := pos - float64(i)
	a, b := s.ramp[i], s.ramp[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*f))
	}
	return color.RGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 255}
}

func parseHex(h string) (color.RGBA, error) {
	s := strings.TrimPrefix(strings.TrimSpace(h), "#")
	if len(s) != 6 {
		return color.RGBA{}, eris.Errorf("report: invalid colour %q", h)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, eris.Errorf("report: invalid colour %q", h)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func toHex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
