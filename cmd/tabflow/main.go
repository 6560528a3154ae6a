// Command tabflow runs YAML-defined transformation pipelines: read a source
// (CSV, SQLite table, sequence pattern or shapefile), apply the configured
// steps, and write the result as CSV. With -cron or -every the pipeline
// re-runs on a schedule until interrupted.
package main

import (
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/SimonWaldherr/tabflow/internal/config"
	"github.com/SimonWaldherr/tabflow/internal/dataset"
	"github.com/SimonWaldherr/tabflow/internal/job"
	"github.com/SimonWaldherr/tabflow/internal/raster"
	"github.com/SimonWaldherr/tabflow/internal/schedule"
	"github.com/SimonWaldherr/tabflow/internal/sequencer"
	"github.com/SimonWaldherr/tabflow/internal/source"
)

const (
	defaultExampleRows = 100
	defaultExampleWait = 5 * time.Second
)

func main() {
	exitIfErr(run(os.Args[1:]))
}

func exitIfErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "tabflow:", err)
	os.Exit(1)
}

func run(args []string) error {
	fs := flag.NewFlagSet("tabflow", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	example := fs.Bool("example", false, "Compute a bounded preview instead of the full result")
	cronSpec := fs.String("cron", "", "Re-run on a cron schedule (six fields, seconds first)")
	every := fs.Duration("every", 0, "Re-run at a fixed interval")
	timeout := fs.Duration("timeout", 0, "Bound one scheduled run (default 5m)")
	output := fs.String("output", "", "Write the result here instead of the pipeline's output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tabflow [flags] pipeline.yaml")
	}

	p, err := config.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	if *output != "" {
		p.Output = *output
	}

	if *cronSpec != "" || *every != 0 {
		return runScheduled(p, *example, *cronSpec, *every, *timeout)
	}

	priority := job.Background
	if *example {
		priority = job.Interactive
	}
	return runOnce(p, *example, job.New(priority))
}

// runScheduled re-runs the pipeline until the process is interrupted.
func runScheduled(p *config.Pipeline, example bool, cronSpec string, every, timeout time.Duration) error {
	r := schedule.NewRunner()
	err := r.Add(schedule.Task{
		Name:      "pipeline",
		Spec:      cronSpec,
		Interval:  every,
		Timeout:   timeout,
		NoOverlap: true,
		Run: func(j *job.Job) error {
			return runOnce(p, example, j)
		},
	})
	if err != nil {
		return err
	}
	r.Start()
	defer r.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}

// runOnce executes the pipeline end to end under one job.
func runOnce(p *config.Pipeline, example bool, j *job.Job) error {
	leaf, closer, err := openLeaf(p)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	d, err := p.Chain(leaf)
	if err != nil {
		return err
	}
	d = dataset.Optimize(d)

	type outcome struct {
		r   *raster.Raster
		err error
	}
	done := make(chan outcome, 1)
	cb := func(r *raster.Raster, err error) { done <- outcome{r, err} }
	if example {
		rows := p.Example.Rows
		if rows <= 0 {
			rows = defaultExampleRows
		}
		wait := time.Duration(p.Example.Wait)
		if wait <= 0 {
			wait = defaultExampleWait
		}
		dataset.Example(d, j, rows, wait, cb)
	} else {
		dataset.ToRaster(d, j, cb)
	}
	out := <-done
	if out.err != nil {
		return out.err
	}
	return writeResult(p.Output, out.r)
}

// openLeaf builds the pipeline's source dataset. The returned closer is
// non-nil for sources that hold a connection.
func openLeaf(p *config.Pipeline) (dataset.Dataset, io.Closer, error) {
	s := p.Source
	switch s.Kind {
	case "csv":
		opts := source.CSVOptions{Header: source.HeaderMode(s.Header)}
		if s.Delimiter != "" {
			opts.Delimiter = []rune(s.Delimiter)[0]
		}
		return dataset.FromStream(source.NewCSVFile(s.Path, opts)), nil, nil

	case "sqlite":
		db, err := sql.Open("sqlite", s.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", s.Path, err)
		}
		return dataset.FromSQL(db, s.Table, dataset.SQLite, s.Columns...), db, nil

	case "sequence":
		pat, err := sequencer.Compile(s.Pattern)
		if err != nil {
			return nil, nil, err
		}
		column := s.Column
		if column == "" {
			column = "value"
		}
		return dataset.FromStream(source.NewSequence(pat, column)), nil, nil

	case "shapefile":
		return dataset.FromStream(source.NewShapefile(s.Path)), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown source kind %q", s.Kind)
}

// writeResult renders a raster as CSV to the given path, or stdout when the
// path is empty.
func writeResult(path string, r *raster.Raster) error {
	w := io.Writer(os.Stdout)
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	cw := csv.NewWriter(w)
	names := make([]string, r.ColumnCount())
	for i, c := range r.Columns() {
		names[i] = c.Name
	}
	if err := cw.Write(names); err != nil {
		return err
	}
	record := make([]string, r.ColumnCount())
	for i := 0; i < r.RowCount(); i++ {
		row := r.Row(i)
		for c, v := range row {
			record[c] = v.Text()
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
