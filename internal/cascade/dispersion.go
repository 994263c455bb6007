package cascade

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/cascade/internal/params"
)

// Region is the half-open byte span [Start, End) owned by one layer.
type Region struct {
	Layer int `json:"layer"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the region width in bytes.
func (r Region) Len() int {
	return r.End - r.Start
}

// RegionSummary describes a region after dispersion.
type RegionSummary struct {
	Region
	Pattern byte   `json:"pattern"`
	Mask    byte   `json:"mask"`
	Sum     uint64 `json:"sum"`
}

// Regions partitions size bytes into n contiguous regions of floor(size/n)
// bytes. The last region absorbs the remainder so every index is covered
// exactly once.
func Regions(size, n int) ([]Region, error) {
	if n <= 0 {
		return nil, fmt.Errorf("regions: layers %d: %w", n, params.ErrInvalidArgument)
	}
	if size < n {
		return nil, fmt.Errorf("regions: %d bytes cannot hold %d layers: %w", size, n, params.ErrInvalidArgument)
	}
	width := size / n
	out := make([]Region, n)
	for d := range out {
		start := d * width
		end := start + width
		if d == n-1 {
			end = size
		}
		out[d] = Region{Layer: d, Start: start, End: end}
	}
	return out, nil
}

// Mask is floor(255·weight) clamped to a byte.
func Mask(weight float64) byte {
	m := math.Floor(255 * weight)
	switch {
	case math.IsNaN(m) || m <= 0:
		return 0
	case m >= 255:
		return 255
	default:
		return byte(m)
	}
}

// disperseRegion applies b' = (b XOR pattern) AND mask to every byte of r.
func disperseRegion(buf []byte, r Region, weight float64) {
	pattern := params.Parity(r.Layer)
	mask := Mask(weight)
	region := buf[r.Start:r.End]
	for i := range region {
		region[i] = (region[i] ^ pattern) & mask
	}
}

func (e *Engine) regionsFor(buf []byte) ([]Region, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("disperse: empty buffer: %w", params.ErrInvalidArgument)
	}
	return Regions(len(buf), e.Params.Layers)
}

// Disperse transforms buf in place, one region per layer, in layer order.
// The context is checked between regions.
func (e *Engine) Disperse(ctx context.Context, buf []byte) ([]Region, error) {
	regions, err := e.regionsFor(buf)
	if err != nil {
		return nil, err
	}
	for _, r := range regions {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("disperse layer %d: %w", r.Layer, err)
		}
		disperseRegion(buf, r, e.Series.At(r.Layer))
	}
	return regions, nil
}

// DisperseParallel is Disperse with regions spread over at most workers
// goroutines. Regions are disjoint, so the result is identical.
func (e *Engine) DisperseParallel(ctx context.Context, buf []byte, workers int) ([]Region, error) {
	regions, err := e.regionsFor(buf)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, r := range regions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("disperse layer %d: %w", r.Layer, err)
			}
			disperseRegion(buf, r, e.Series.At(r.Layer))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return regions, nil
}

// Summarize reports pattern, mask and byte sum for each region of buf.
func (e *Engine) Summarize(buf []byte, regions []Region) []RegionSummary {
	out := make([]RegionSummary, len(regions))
	for i, r := range regions {
		var sum uint64
		for _, b := range buf[r.Start:r.End] {
			sum += uint64(b)
		}
		out[i] = RegionSummary{
			Region:  r,
			Pattern: params.Parity(r.Layer),
			Mask:    Mask(e.Series.At(r.Layer)),
			Sum:     sum,
		}
	}
	return out
}
