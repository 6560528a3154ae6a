package config

import (
	"strings"
	"testing"
	"time"

	"github.com/SimonWaldherr/tabflow/internal/dataset"
	"github.com/SimonWaldherr/tabflow/internal/sequencer"
	"github.com/SimonWaldherr/tabflow/internal/source"
)

func sequenceLeaf(pattern string) (dataset.Dataset, error) {
	p, err := sequencer.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return dataset.FromStream(source.NewSequence(p, "value")), nil
}

const sampleDoc = `
locale: de
source:
  kind: csv
  path: orders.csv
  delimiter: ";"
steps:
  - kind: filter
    formula: "[preis] > 100"
  - kind: sort
    orders:
      - formula: "[preis]"
        descending: true
  - kind: limit
    count: 10
output: top.csv
example:
  rows: 50
  wait: 1s
`

func TestParsePipeline(t *testing.T) {
	p, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Source.Kind != "csv" || p.Source.Delimiter != ";" {
		t.Fatalf("source: %+v", p.Source)
	}
	if len(p.Steps) != 3 || p.Steps[2].Count != 10 {
		t.Fatalf("steps: %+v", p.Steps)
	}
	if time.Duration(p.Example.Wait) != time.Second {
		t.Fatalf("wait: %v", p.Example.Wait)
	}
	loc, err := p.FormulaLocale()
	if err != nil || loc == nil {
		t.Fatalf("locale: %v", err)
	}
}

func TestParseRejectsUnknownKinds(t *testing.T) {
	_, err := Parse([]byte("source:\n  kind: ftp\n  path: x\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown source kind") {
		t.Fatalf("source kind: %v", err)
	}
	_, err = Parse([]byte("source:\n  kind: csv\n  path: x\nsteps:\n  - kind: frobnicate\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown kind") {
		t.Fatalf("step kind: %v", err)
	}
}

func TestParseRequiresSourceFields(t *testing.T) {
	cases := []string{
		"source:\n  kind: csv\n",
		"source:\n  kind: sqlite\n  path: db.sqlite\n",
		"source:\n  kind: sequence\n",
	}
	for _, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("accepted incomplete source: %s", doc)
		}
	}
}

func TestDurationDecoding(t *testing.T) {
	p, err := Parse([]byte("source:\n  kind: sequence\n  pattern: \"[a-c]\"\nexample:\n  wait: 1m30s\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if time.Duration(p.Example.Wait) != 90*time.Second {
		t.Fatalf("wait: %v", p.Example.Wait)
	}
	_, err = Parse([]byte("source:\n  kind: sequence\n  pattern: x\nexample:\n  wait: soon\n"))
	if err == nil || !strings.Contains(err.Error(), "bad duration") {
		t.Fatalf("bad duration: %v", err)
	}
}

func TestChainBuildsSteps(t *testing.T) {
	p, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	leaf, err := sequenceLeaf("[a-c][0-9]")
	if err != nil {
		t.Fatalf("leaf: %v", err)
	}
	// The sample uses German formulas over a column the sequence does not
	// have; Chain only parses and wires, so that is fine.
	d, err := p.Chain(leaf)
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if d == leaf {
		t.Fatalf("chain applied no steps")
	}
}

func TestChainRejectsBadFormula(t *testing.T) {
	p, err := Parse([]byte("source:\n  kind: sequence\n  pattern: x\nsteps:\n  - kind: filter\n    formula: \"1 +\"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	leaf, err := sequenceLeaf("[a-c]")
	if err != nil {
		t.Fatalf("leaf: %v", err)
	}
	if _, err := p.Chain(leaf); err == nil {
		t.Fatalf("accepted unparsable formula")
	}
}

func TestChainRejectsUnknownAggregate(t *testing.T) {
	doc := `
source:
  kind: sequence
  pattern: x
steps:
  - kind: aggregate
    groups:
      - name: g
        formula: value
    aggregations:
      - name: n
        formula: value
        function: FROBNICATE
`
	p, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	leaf, err := sequenceLeaf("[a-c]")
	if err != nil {
		t.Fatalf("leaf: %v", err)
	}
	if _, err := p.Chain(leaf); err == nil || !strings.Contains(err.Error(), "FROBNICATE") {
		t.Fatalf("aggregate function: %v", err)
	}
}
