package wind

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/nilsmagnus/grib/griblib"
)

const msToKnots = 1.9438444924406

var ErrNoWind = errors.New("no 10m wind in grib")

// Field is a gridded u/v wind forecast at 10m above ground.
type Field struct {
	Lat0 float64
	Lon0 float64
	ΔLat float64
	ΔLon float64
	NLat uint32
	NLon uint32
	U    [][]float64
	V    [][]float64
}

func (w *Field) buildGrid(data []float64) [][]float64 {

	isContinuous := math.Floor(float64(w.NLon)*w.ΔLon) >= 360

	nLon := w.NLon
	if isContinuous {
		nLon++
	}

	grid := make([][]float64, w.NLat)

	p := 0
	for j := uint32(0); j < w.NLat; j++ {
		grid[j] = make([]float64, nLon)
		for i := uint32(0); i < w.NLon && p < len(data); i++ {
			grid[j][i] = data[p]
			p++
		}
		if isContinuous {
			grid[j][w.NLon] = grid[j][0]
		}
	}
	return grid
}

// Load reads the U and V components of the 10m wind from a GRIB2 stream.
func Load(r io.Reader) (*Field, error) {
	messages, err := griblib.ReadMessages(r)
	if err != nil {
		return nil, fmt.Errorf("read grib: %w", err)
	}

	w := &Field{}
	for _, message := range messages {
		product := message.Section4.ProductDefinitionTemplate
		if message.Section0.Discipline != 0 || product.ParameterCategory != 2 || product.FirstSurface.Type != 103 || product.FirstSurface.Value != 10 {
			continue
		}
		grid0, ok := message.Section3.Definition.(*griblib.Grid0)
		if !ok {
			continue
		}
		w.Lat0 = float64(grid0.La1) / 1e6
		w.Lon0 = float64(grid0.Lo1) / 1e6
		w.ΔLat = float64(grid0.Di) / 1e6
		w.ΔLon = float64(grid0.Dj) / 1e6
		w.NLat = grid0.Nj
		w.NLon = grid0.Ni
		switch product.ParameterNumber {
		case 2:
			w.U = w.buildGrid(message.Section7.Data)
		case 3:
			w.V = w.buildGrid(message.Section7.Data)
		}
	}

	if w.U == nil || w.V == nil || w.NLat < 2 || w.NLon < 2 {
		return nil, ErrNoWind
	}
	return w, nil
}

func floorMod(a float64, n float64) float64 {
	return a - n*math.Floor(a/n)
}

func bilinearInterpolate(x float64, y float64, g00 []float64, g10 []float64, g01 []float64, g11 []float64) (float64, float64) {

	rx := (1 - x)
	ry := (1 - y)

	a := rx * ry
	b := x * ry
	c := rx * y
	d := x * y

	u := g00[0]*a + g10[0]*b + g01[0]*c + g11[0]*d
	v := g00[1]*a + g10[1]*b + g01[1]*c + g11[1]*d

	return u, v
}

func vectorToDegrees(u float64, v float64, d float64) float64 {
	if d == 0 {
		return 0
	}
	velocityDir := math.Atan2(u/d, v/d)
	return floorMod(velocityDir*180/math.Pi+180, 360)
}

func clampIndex(f float64, n int) (int, float64) {
	if f <= 0 {
		return 0, 0
	}
	if f >= float64(n-1) {
		return n - 2, 1
	}
	i := int(f)
	return i, f - float64(i)
}

func (w *Field) interpolate(lat float64, lon float64) (float64, float64) {

	fi, y := clampIndex(math.Abs((lat-w.Lat0)/w.ΔLat), len(w.U))
	fj, x := clampIndex(floorMod(lon-w.Lon0, 360.0)/w.ΔLon, len(w.U[0]))

	return bilinearInterpolate(x, y,
		[]float64{w.U[fi][fj], w.V[fi][fj]},
		[]float64{w.U[fi][fj+1], w.V[fi][fj+1]},
		[]float64{w.U[fi+1][fj], w.V[fi+1][fj]},
		[]float64{w.U[fi+1][fj+1], w.V[fi+1][fj+1]})
}

// At returns the direction the wind blows from, in degrees, and its speed
// in knots. Positions outside the grid use the nearest edge.
func (w *Field) At(lat, lon float64) (float64, float64) {
	u, v := w.interpolate(lat, lon)
	d := math.Sqrt(u*u + v*v)

	return vectorToDegrees(u, v, d), d * msToKnots
}
