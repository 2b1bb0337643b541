package polar

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

//go:embed ac35.csv
var ac35 []byte

var ErrInvalidPolars = errors.New("invalid polars")

// Polars is a boat performance matrix: one row of (twa, boat speed) pairs
// per true wind speed, in knots and degrees.
type Polars struct {
	Tws  []float64
	Twa  [][]float64
	Bsp  [][]float64
	opts []Table
}

// Table holds the optimum upwind and downwind angles for one wind speed.
// Downwind angles are measured from the wind, so they are above 90.
type Table struct {
	Tws     float64 `json:"tws"`
	UpTwa   float64 `json:"upTwa"`
	UpVmg   float64 `json:"upVmg"`
	DownTwa float64 `json:"downTwa"`
	DownVmg float64 `json:"downVmg"`
}

func (t Table) OptimumTWA(onTack bool) float64 {
	if onTack {
		return t.UpTwa
	}
	return t.DownTwa
}

// OptimumVMG is the velocity made good towards or away from the wind,
// always positive.
func (t Table) OptimumVMG(onTack bool) float64 {
	if onTack {
		return t.UpVmg
	}
	return t.DownVmg
}

// Default returns the AC35 yacht polars.
func Default() *Polars {
	p, err := Load(bytes.NewReader(ac35))
	if err != nil {
		panic(err)
	}
	return p
}

// Load reads a polar file: a header line then `tws,twa0,bsp0,twa1,bsp1,...`.
func Load(r io.Reader) (*Polars, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolars, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidPolars)
	}

	p := &Polars{}
	for n, record := range records[1:] {
		line := n + 2
		if len(record) < 3 || len(record)%2 != 1 {
			return nil, fmt.Errorf("%w: line %d: want tws followed by twa/bsp pairs", ErrInvalidPolars, line)
		}
		values := make([]float64, len(record))
		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidPolars, line, err)
			}
			values[i] = v
		}

		tws := values[0]
		if len(p.Tws) > 0 && tws <= p.Tws[len(p.Tws)-1] {
			return nil, fmt.Errorf("%w: line %d: wind speeds must increase", ErrInvalidPolars, line)
		}

		twa := make([]float64, 0, len(values)/2)
		bsp := make([]float64, 0, len(values)/2)
		for i := 1; i < len(values); i += 2 {
			if len(twa) > 0 && values[i] < twa[len(twa)-1] {
				return nil, fmt.Errorf("%w: line %d: angles must not decrease", ErrInvalidPolars, line)
			}
			twa = append(twa, values[i])
			bsp = append(bsp, values[i+1])
		}

		p.Tws = append(p.Tws, tws)
		p.Twa = append(p.Twa, twa)
		p.Bsp = append(p.Bsp, bsp)
	}

	p.opts = make([]Table, len(p.Tws))
	for i := range p.Tws {
		p.opts[i] = p.optimum(i)
	}

	return p, nil
}

func foldTwa(twa float64) float64 {
	t := math.Mod(math.Abs(twa), 360)
	if t > 180 {
		t = 360 - t
	}
	return t
}

func (p *Polars) rowSpeed(row int, twa float64) float64 {
	i0, i1, f := interpolationIndex(p.Twa[row], twa)
	return p.Bsp[row][i0]*f + p.Bsp[row][i1]*(1-f)
}

// BoatSpeed interpolates the boat speed in knots, clamped to the table.
func (p *Polars) BoatSpeed(twa float64, tws float64) float64 {
	t := foldTwa(twa)

	i0, i1, f := interpolationIndex(p.Tws, tws)

	return p.rowSpeed(i0, t)*f + p.rowSpeed(i1, t)*(1-f)
}

func (p *Polars) optimum(row int) Table {
	o := Table{Tws: p.Tws[row]}
	for twa := 0.0; twa <= 180; twa += 0.5 {
		bs := p.rowSpeed(row, twa)
		vmg := bs * math.Cos(twa*math.Pi/180)
		if twa < 90 && vmg > o.UpVmg {
			o.UpVmg = vmg
			o.UpTwa = twa
		}
		if twa > 90 && -vmg > o.DownVmg {
			o.DownVmg = -vmg
			o.DownTwa = twa
		}
	}
	return o
}

// Table interpolates the optimum angles between the two nearest wind
// speed rows. Wind speeds outside the table are clamped.
func (p *Polars) Table(tws float64) Table {
	i0, i1, f := interpolationIndex(p.Tws, tws)
	a, b := p.opts[i0], p.opts[i1]

	return Table{
		Tws:     a.Tws*f + b.Tws*(1-f),
		UpTwa:   a.UpTwa*f + b.UpTwa*(1-f),
		UpVmg:   a.UpVmg*f + b.UpVmg*(1-f),
		DownTwa: a.DownTwa*f + b.DownTwa*(1-f),
		DownVmg: a.DownVmg*f + b.DownVmg*(1-f),
	}
}

// interpolationIndex returns the bracketing indexes of value and the weight
// of the first one. Values outside the slice are clamped to its ends.
func interpolationIndex(values []float64, value float64) (int, int, float64) {

	i := 0
	for values[i] < value {
		i++
		if i == len(values) {
			return i - 1, 0, 1
		}
	}

	if i > 0 {
		return i - 1, i, (values[i] - value) / (values[i] - values[i-1])
	}

	return 0, 0, 0
}
