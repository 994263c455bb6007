package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/cascade/internal/params"
)

// BufferProvider hands out the working buffer for a run. Implementations
// live in internal/buffer; tests inject their own.
type BufferProvider interface {
	// Acquire returns a buffer of exactly size bytes.
	Acquire(size int) ([]byte, error)
	// Release returns a buffer obtained from Acquire.
	Release(buf []byte)
}

// Engine holds the parameters and the energy series every stage reads.
// It carries no mutable state after construction and is safe for
// concurrent use.
type Engine struct {
	Params params.Params
	Series *EnergySeries

	// Parallel spreads the dispersion pass over Workers goroutines.
	Parallel bool
	Workers  int
}

// Report is the complete output of one run.
type Report struct {
	ID         uuid.UUID        `json:"id"`
	CreatedAt  time.Time        `json:"created_at"`
	Elapsed    time.Duration    `json:"elapsed"`
	Params     params.Params    `json:"params"`
	Series     *EnergySeries    `json:"series"`
	Signatures []LayerSignature `json:"signatures"`
	Records    [][]byte         `json:"records"`
	Regions    []RegionSummary  `json:"regions"`
	Verdict    CascadeVerdict   `json:"verdict"`
}

// NewEngine validates p and computes its energy series.
func NewEngine(p params.Params) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	series, err := NewEnergySeries(p.Alpha, p.Layers)
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	return &Engine{Params: p, Series: series, Workers: 1}, nil
}

// Signature derives the signature of layer d.
func (e *Engine) Signature(d int) (LayerSignature, error) {
	return DeriveSignature(e.Params, e.Series, d)
}

// Signatures derives every layer's signature in layer order.
func (e *Engine) Signatures() ([]LayerSignature, error) {
	out := make([]LayerSignature, e.Params.Layers)
	for d := range out {
		sig, err := e.Signature(d)
		if err != nil {
			return nil, err
		}
		out[d] = sig
	}
	return out, nil
}

// Record encodes layer d.
func (e *Engine) Record(d int) ([]byte, error) {
	return EncodeRecord(e.Params, e.Series, d)
}

// Records encodes every layer in layer order.
func (e *Engine) Records() ([][]byte, error) {
	out := make([][]byte, e.Params.Layers)
	for d := range out {
		rec, err := e.Record(d)
		if err != nil {
			return nil, err
		}
		out[d] = rec
	}
	return out, nil
}

// Verdict runs the cascade aggregation.
func (e *Engine) Verdict() (CascadeVerdict, error) {
	return Aggregate(e.Params, e.Series)
}

// Run executes the whole pipeline against a buffer from provider.
func (e *Engine) Run(ctx context.Context, provider BufferProvider) (*Report, error) {
	start := time.Now()
	size := e.Params.BufferSize()

	buf, err := provider.Acquire(size)
	if err != nil {
		return nil, fmt.Errorf("acquire buffer: %w", err)
	}
	defer provider.Release(buf)
	if len(buf) != size {
		return nil, fmt.Errorf("acquire buffer: got %d bytes, want %d: %w",
			len(buf), size, params.ErrInvalidArgument)
	}

	var regions []Region
	if e.Parallel && e.Workers > 1 {
		regions, err = e.DisperseParallel(ctx, buf, e.Workers)
	} else {
		regions, err = e.Disperse(ctx, buf)
	}
	if err != nil {
		return nil, err
	}

	sigs, err := e.Signatures()
	if err != nil {
		return nil, err
	}
	records, err := e.Records()
	if err != nil {
		return nil, err
	}
	verdict, err := e.Verdict()
	if err != nil {
		return nil, err
	}

	r := &Report{
		ID:         uuid.New(),
		CreatedAt:  start.UTC(),
		Params:     e.Params,
		Series:     e.Series,
		Signatures: sigs,
		Records:    records,
		Regions:    e.Summarize(buf, regions),
		Verdict:    verdict,
	}
	r.Elapsed = time.Since(start)

	slog.Info("cascade run complete",
		"run", r.ID,
		"layers", e.Params.Layers,
		"buffer", humanize.IBytes(uint64(size)),
		"cascade_total", fmt.Sprintf("%.4f", verdict.CascadeTotal),
		"total_effect", fmt.Sprintf("%.4f", verdict.TotalEffect),
		"achieved", verdict.Achieved,
		"elapsed", r.Elapsed,
	)
	return r, nil
}
