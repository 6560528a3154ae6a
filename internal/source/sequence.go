package source

import (
	"github.com/SimonWaldherr/tabflow/internal/job"
	"github.com/SimonWaldherr/tabflow/internal/raster"
	"github.com/SimonWaldherr/tabflow/internal/sequencer"
	"github.com/SimonWaldherr/tabflow/internal/value"
)

// Sequence exposes a compiled sequence pattern as a one-column row stream.
type Sequence struct {
	pattern *sequencer.Pattern
	column  raster.Column
}

// NewSequence wraps a compiled pattern. column names the single output
// column.
func NewSequence(p *sequencer.Pattern, column string) *Sequence {
	return &Sequence{pattern: p, column: raster.Col(column)}
}

func (s *Sequence) Columns() ([]raster.Column, error) {
	return []raster.Column{s.column}, nil
}

// Read enumerates the pattern's values in order, polling cancellation once
// per 256 produced rows.
func (s *Sequence) Read(j *job.Job, emit func(row []value.Value) error) error {
	it := s.pattern.Iterate()
	n := 0
	for {
		v, ok := it.Next()
		if !ok {
			return nil
		}
		if err := emit([]value.Value{v}); err != nil {
			return err
		}
		n++
		if n%256 == 0 && j.Cancelled() {
			return nil
		}
	}
}
