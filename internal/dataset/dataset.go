// Package dataset implements lazy, composable table transformations.
//
// What: A Dataset is a recipe for producing rows. Composing operators (limit,
// filter, sort, join, aggregate and friends) wraps one Dataset in another
// without reading any data; rows flow only when a terminal (ToRaster, Example
// or a raw Fetch) drives the chain. Leaves adapt an in-memory Raster, a
// streaming row source or a SQL table.
// How: Fetch pushes fixed-size row batches through a sink callback.
// Order-preserving operators re-batch on the fly; order-destroying operators
// (sort, distinct, aggregate, transpose, random) materialize their input
// first. Early termination (limit reached, example bounds hit) cancels a
// child job so upstream leaves stop promptly.
// Why: Chains over large sources must stay cheap to build and rearrange; the
// optimizer in this package rewrites chains freely precisely because nothing
// has executed yet.
package dataset

import (
	"fmt"
	"time"

	"github.com/SimonWaldherr/tabflow/internal/job"
	"github.com/SimonWaldherr/tabflow/internal/raster"
	"github.com/SimonWaldherr/tabflow/internal/value"
)

// batchSize is the number of rows per sink delivery.
const batchSize = 256

// Sink receives row batches from Fetch. Batches arrive in order; the final
// call has finished == true. A failure is reported through exactly one
// terminal call carrying err. Rows are shared, not copied; sinks must not
// mutate them.
type Sink func(rows [][]value.Value, finished bool, err error)

// Dataset is a lazy table. Implementations must deliver rows in a stable
// order across Fetch calls unless the operator inherently reorders.
type Dataset interface {
	// Columns reports the ordered column set. cb is invoked exactly once.
	Columns(j *job.Job, cb func(cols []raster.Column, err error))
	// Fetch streams all rows to sink in batches and blocks until the
	// terminal delivery. Cancellation of j truncates the stream without an
	// error; batches already delivered remain valid.
	Fetch(j *job.Job, sink Sink)
}

// RowSource is a pull-based row producer backing a stream leaf. Read stops
// early when emit returns an error.
type RowSource interface {
	Columns() ([]raster.Column, error)
	Read(j *job.Job, emit func(row []value.Value) error) error
}

// ------------------------------ helpers ------------------------------

// columnsOf resolves the column callback into a plain return value.
func columnsOf(j *job.Job, d Dataset) ([]raster.Column, error) {
	type result struct {
		cols []raster.Column
		err  error
	}
	ch := make(chan result, 1)
	d.Columns(j, func(cols []raster.Column, err error) {
		ch <- result{cols, err}
	})
	res := <-ch
	return res.cols, res.err
}

// fetchAll drains a Dataset into memory.
func fetchAll(j *job.Job, d Dataset) ([][]value.Value, error) {
	var rows [][]value.Value
	var ferr error
	d.Fetch(j, func(batch [][]value.Value, finished bool, err error) {
		if err != nil {
			ferr = err
			return
		}
		rows = append(rows, batch...)
	})
	return rows, ferr
}

// emitter re-batches rows for a downstream sink and guards the
// exactly-one-terminal-call contract.
type emitter struct {
	sink Sink
	buf  [][]value.Value
	done bool
}

func newEmitter(sink Sink) *emitter {
	return &emitter{sink: sink, buf: make([][]value.Value, 0, batchSize)}
}

func (e *emitter) push(row []value.Value) {
	if e.done {
		return
	}
	e.buf = append(e.buf, row)
	if len(e.buf) >= batchSize {
		e.sink(e.buf, false, nil)
		e.buf = make([][]value.Value, 0, batchSize)
	}
}

func (e *emitter) pushAll(rows [][]value.Value) {
	for _, row := range rows {
		e.push(row)
	}
}

func (e *emitter) finish() {
	if e.done {
		return
	}
	e.done = true
	e.sink(e.buf, true, nil)
	e.buf = nil
}

func (e *emitter) fail(err error) {
	if e.done {
		return
	}
	e.done = true
	e.sink(nil, true, err)
	e.buf = nil
}

// childJob derives a cancellable job for an upstream fetch so an operator
// can stop its source without cancelling the caller's job.
func childJob(j *job.Job) *job.Job {
	return job.WithContext(j.Context(), j.Priority())
}

// ------------------------------ Raster leaf ------------------------------

type rasterData struct {
	r *raster.Raster
}

// FromRaster wraps an in-memory table. The raster must not be mutated while
// a fetch is running.
func FromRaster(r *raster.Raster) Dataset {
	return &rasterData{r: r}
}

func (d *rasterData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	cb(d.r.Columns(), nil)
}

func (d *rasterData) Fetch(j *job.Job, sink Sink) {
	rows := d.r.Rows()
	total := len(rows)
	for start := 0; start < total; start += batchSize {
		if j.Cancelled() {
			sink(nil, true, nil)
			return
		}
		end := start + batchSize
		if end > total {
			end = total
		}
		finished := end == total
		sink(rows[start:end], finished, nil)
		j.ReportProgress(float64(end) / float64(total))
		if finished {
			return
		}
	}
	sink(nil, true, nil)
}

// FromRows is a convenience leaf over literal columns and rows.
func FromRows(cols []raster.Column, rows [][]value.Value) (Dataset, error) {
	r, err := raster.New(cols)
	if err != nil {
		return nil, err
	}
	r.AddRows(rows)
	return FromRaster(r), nil
}

// ------------------------------ Stream leaf ------------------------------

type streamData struct {
	src RowSource
}

// FromStream wraps a pull-based row source, for example a CSV parser.
func FromStream(src RowSource) Dataset {
	return &streamData{src: src}
}

func (d *streamData) Columns(j *job.Job, cb func([]raster.Column, error)) {
	cols, err := d.src.Columns()
	cb(cols, err)
}

func (d *streamData) Fetch(j *job.Job, sink Sink) {
	e := newEmitter(sink)
	n := 0
	err := d.src.Read(j, func(row []value.Value) error {
		e.push(row)
		n++
		if n%batchSize == 0 && j.Cancelled() {
			return j.Err()
		}
		return nil
	})
	if err != nil && !j.Cancelled() {
		e.fail(err)
		return
	}
	e.finish()
}

// ------------------------------ terminals ------------------------------

// ToRaster materializes the chain into a Raster. cb runs on another
// goroutine, exactly once.
func ToRaster(d Dataset, j *job.Job, cb func(*raster.Raster, error)) {
	go func() {
		r, err := materialize(j, d)
		cb(r, err)
	}()
}

func materialize(j *job.Job, d Dataset) (*raster.Raster, error) {
	cols, err := columnsOf(j, d)
	if err != nil {
		return nil, err
	}
	r, err := raster.New(cols)
	if err != nil {
		return nil, err
	}
	rows, err := fetchAll(j, d)
	if err != nil {
		return nil, err
	}
	r.AddRows(rows)
	return r, nil
}

// Example materializes a bounded preview: at most maxRows rows, at most
// maxWait wall time. Hitting either bound truncates without error.
func Example(d Dataset, j *job.Job, maxRows int, maxWait time.Duration, cb func(*raster.Raster, error)) {
	if maxRows <= 0 {
		cb(nil, fmt.Errorf("example: row bound must be positive, got %d", maxRows))
		return
	}
	go func() {
		cols, err := columnsOf(j, d)
		if err != nil {
			cb(nil, err)
			return
		}
		r, err := raster.New(cols)
		if err != nil {
			cb(nil, err)
			return
		}
		child := childJob(j)
		defer child.Cancel()
		if maxWait > 0 {
			timer := time.AfterFunc(maxWait, child.Cancel)
			defer timer.Stop()
		}
		kept := 0
		var ferr error
		d.Fetch(child, func(batch [][]value.Value, finished bool, err error) {
			if err != nil {
				ferr = err
				return
			}
			if kept >= maxRows {
				return
			}
			room := maxRows - kept
			if len(batch) > room {
				batch = batch[:room]
			}
			r.AddRows(batch)
			kept += len(batch)
			if kept >= maxRows {
				child.Cancel()
			}
		})
		if ferr != nil {
			cb(nil, ferr)
			return
		}
		cb(r, nil)
	}()
}
