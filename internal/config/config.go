// Package config reads YAML pipeline definitions for the command line tool:
// a source, an ordered list of transformation steps and an output target.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/tabflow/internal/dataset"
	"github.com/SimonWaldherr/tabflow/internal/formula"
)

// Pipeline is one complete pipeline document.
type Pipeline struct {
	// Locale selects the formula locale for every step ("en" default, "de").
	Locale string `yaml:"locale"`
	Source Source `yaml:"source"`
	Steps  []Step `yaml:"steps"`
	// Output is the CSV file the result is written to; empty means stdout.
	Output  string  `yaml:"output"`
	Example Example `yaml:"example"`
}

// Source names the pipeline's leaf dataset.
type Source struct {
	// Kind is csv, sqlite, sequence or shapefile.
	Kind string `yaml:"kind"`
	// Path is the input file (csv, sqlite database, shapefile).
	Path string `yaml:"path"`
	// Delimiter forces the CSV field separator; empty auto-detects.
	Delimiter string `yaml:"delimiter"`
	// Header is auto, present or absent (csv).
	Header string `yaml:"header"`
	// Table is the table read from a sqlite source.
	Table string `yaml:"table"`
	// Columns optionally pins the sqlite projection.
	Columns []string `yaml:"columns"`
	// Pattern is the sequence pattern (sequence kind).
	Pattern string `yaml:"pattern"`
	// Column names the generated sequence column (default "value").
	Column string `yaml:"column"`
}

// Step is one transformation. Exactly the fields of its kind apply.
type Step struct {
	Kind string `yaml:"kind"`

	Formula      string            `yaml:"formula"`      // filter, calculate
	Column       string            `yaml:"column"`       // calculate
	Count        int               `yaml:"count"`        // limit, offset, random
	Seed         int64             `yaml:"seed"`         // random
	Columns      []string          `yaml:"columns"`      // select
	Mapping      map[string]string `yaml:"mapping"`      // rename
	Orders       []OrderSpec       `yaml:"orders"`       // sort
	Groups       []NamedFormula    `yaml:"groups"`       // aggregate
	Aggregations []AggregationSpec `yaml:"aggregations"` // aggregate
}

// OrderSpec is one sort key.
type OrderSpec struct {
	Formula    string `yaml:"formula"`
	Descending bool   `yaml:"descending"`
}

// NamedFormula pairs an output column name with a formula.
type NamedFormula struct {
	Name    string `yaml:"name"`
	Formula string `yaml:"formula"`
}

// AggregationSpec is one reduction: SUM, AVERAGE, COUNT and the other
// aggregate formula functions.
type AggregationSpec struct {
	Name     string `yaml:"name"`
	Formula  string `yaml:"formula"`
	Function string `yaml:"function"`
}

// Example bounds the preview tier.
type Example struct {
	Rows int      `yaml:"rows"`
	Wait Duration `yaml:"wait"`
}

// Duration decodes YAML strings like "5s" or "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Load reads and validates a pipeline file.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a pipeline document.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

var sourceKinds = map[string]bool{"csv": true, "sqlite": true, "sequence": true, "shapefile": true}

var stepKinds = map[string]bool{
	"filter": true, "sort": true, "limit": true, "offset": true,
	"select": true, "distinct": true, "rename": true, "calculate": true,
	"aggregate": true, "transpose": true, "random": true,
}

func (p *Pipeline) validate() error {
	if !sourceKinds[p.Source.Kind] {
		return fmt.Errorf("config: unknown source kind %q", p.Source.Kind)
	}
	switch p.Source.Kind {
	case "csv", "shapefile":
		if p.Source.Path == "" {
			return fmt.Errorf("config: %s source needs a path", p.Source.Kind)
		}
	case "sqlite":
		if p.Source.Path == "" || p.Source.Table == "" {
			return fmt.Errorf("config: sqlite source needs path and table")
		}
	case "sequence":
		if p.Source.Pattern == "" {
			return fmt.Errorf("config: sequence source needs a pattern")
		}
	}
	for i, s := range p.Steps {
		if !stepKinds[s.Kind] {
			return fmt.Errorf("config: step %d: unknown kind %q", i+1, s.Kind)
		}
	}
	return nil
}

// FormulaLocale resolves the configured locale.
func (p *Pipeline) FormulaLocale() (*formula.Locale, error) {
	switch p.Locale {
	case "", "en":
		return formula.English(), nil
	case "de":
		return formula.German(), nil
	}
	return nil, fmt.Errorf("config: unknown locale %q", p.Locale)
}

// Chain applies the configured steps to a leaf dataset.
func (p *Pipeline) Chain(leaf dataset.Dataset) (dataset.Dataset, error) {
	loc, err := p.FormulaLocale()
	if err != nil {
		return nil, err
	}
	parse := func(src string) (formula.Expression, error) {
		f, err := formula.Parse(src, loc)
		if err != nil {
			return nil, err
		}
		return f.Root, nil
	}
	d := leaf
	for i, s := range p.Steps {
		step, err := applyStep(d, s, parse)
		if err != nil {
			return nil, fmt.Errorf("config: step %d (%s): %w", i+1, s.Kind, err)
		}
		d = step
	}
	return d, nil
}

func applyStep(d dataset.Dataset, s Step, parse func(string) (formula.Expression, error)) (dataset.Dataset, error) {
	switch s.Kind {
	case "filter":
		expr, err := parse(s.Formula)
		if err != nil {
			return nil, err
		}
		return dataset.Filter(d, expr), nil
	case "calculate":
		if s.Column == "" {
			return nil, fmt.Errorf("calculate needs a column")
		}
		expr, err := parse(s.Formula)
		if err != nil {
			return nil, err
		}
		return dataset.Calculate(d, s.Column, expr), nil
	case "sort":
		if len(s.Orders) == 0 {
			return nil, fmt.Errorf("sort needs at least one key")
		}
		orders := make([]dataset.Order, len(s.Orders))
		for i, o := range s.Orders {
			expr, err := parse(o.Formula)
			if err != nil {
				return nil, err
			}
			orders[i] = dataset.Order{Expr: expr, Descending: o.Descending}
		}
		return dataset.Sort(d, orders), nil
	case "limit":
		return dataset.Limit(d, s.Count), nil
	case "offset":
		return dataset.Offset(d, s.Count), nil
	case "select":
		return dataset.SelectColumns(d, s.Columns), nil
	case "distinct":
		return dataset.Distinct(d), nil
	case "rename":
		return dataset.Rename(d, s.Mapping), nil
	case "transpose":
		return dataset.Transpose(d), nil
	case "random":
		seed := s.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return dataset.Random(d, s.Count, seed), nil
	case "aggregate":
		groups := make([]dataset.Grouping, len(s.Groups))
		for i, g := range s.Groups {
			expr, err := parse(g.Formula)
			if err != nil {
				return nil, err
			}
			groups[i] = dataset.Grouping{Name: g.Name, Expr: expr}
		}
		aggs := make([]dataset.Aggregation, len(s.Aggregations))
		for i, a := range s.Aggregations {
			expr, err := parse(a.Formula)
			if err != nil {
				return nil, err
			}
			fn, ok := formula.LookupFunction(a.Function)
			if !ok {
				return nil, fmt.Errorf("unknown aggregate function %q", a.Function)
			}
			aggs[i] = dataset.Aggregation{Name: a.Name, Expr: expr, Function: fn}
		}
		return dataset.Aggregate(d, groups, aggs), nil
	}
	return nil, fmt.Errorf("unknown kind %q", s.Kind)
}
