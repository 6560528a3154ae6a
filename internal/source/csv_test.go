package source

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"

	"github.com/SimonWaldherr/tabflow/internal/job"
	"github.com/SimonWaldherr/tabflow/internal/value"
)

func stringOpener(s string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

func readAll(t *testing.T, c *CSV) [][]value.Value {
	t.Helper()
	j := job.New(job.Background)
	var rows [][]value.Value
	err := c.Read(j, func(row []value.Value) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return rows
}

func TestCSVHeaderAndTypes(t *testing.T) {
	c := NewCSV(stringOpener("name,age,score\nalice,30,1.5\nbob,25,2.25\n"), CSVOptions{})
	cols, err := c.Columns()
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	if len(cols) != 3 || cols[1].Name != "age" {
		t.Fatalf("columns = %v", cols)
	}
	rows := readAll(t, c)
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if !value.Equal(rows[0][1], value.Int(30)) {
		t.Fatalf("age decoded as %v", rows[0][1])
	}
	if !value.Equal(rows[1][2], value.Double(2.25)) {
		t.Fatalf("score decoded as %v", rows[1][2])
	}
	if rows[0][0].Kind() != value.KindString {
		t.Fatalf("name decoded as %v", rows[0][0])
	}
}

func TestCSVDelimiterDetection(t *testing.T) {
	c := NewCSV(stringOpener("a;b;c\n1;2;3\n4;5;6\n"), CSVOptions{})
	cols, err := c.Columns()
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("semicolon file split into %d columns", len(cols))
	}
	// Quoted delimiters do not count.
	c = NewCSV(stringOpener("x,y\n\"a,b\",2\n\"c,d\",3\n"), CSVOptions{})
	rows := readAll(t, c)
	if len(rows) != 2 || rows[0][0].Text() != "a,b" {
		t.Fatalf("quoted field mangled: %v", rows)
	}
}

func TestCSVHeaderModes(t *testing.T) {
	// All-text data gives no evidence of a header; auto keeps it as data.
	c := NewCSV(stringOpener("aa,bb\ncc,dd\n"), CSVOptions{})
	rows := readAll(t, c)
	if len(rows) != 2 {
		t.Fatalf("auto: got %d rows", len(rows))
	}
	cols, _ := c.Columns()
	if cols[0].Name != "column1" {
		t.Fatalf("auto: synthetic name %q", cols[0].Name)
	}
	// Forced header.
	c = NewCSV(stringOpener("aa,bb\ncc,dd\n"), CSVOptions{Header: HeaderPresent})
	rows = readAll(t, c)
	if len(rows) != 1 {
		t.Fatalf("present: got %d rows", len(rows))
	}
	// Forced data keeps a header-looking row.
	c = NewCSV(stringOpener("name,age\nbob,1\n"), CSVOptions{Header: HeaderAbsent})
	rows = readAll(t, c)
	if len(rows) != 2 {
		t.Fatalf("absent: got %d rows", len(rows))
	}
}

func TestCSVEmptyFieldsAndRaggedRows(t *testing.T) {
	c := NewCSV(stringOpener("a,b,c\n1,,3\n4,5\n"), CSVOptions{Header: HeaderPresent})
	rows := readAll(t, c)
	if !rows[0][1].IsEmpty() {
		t.Fatalf("empty field decoded as %v", rows[0][1])
	}
	if !rows[1][2].IsEmpty() {
		t.Fatalf("short row not padded: %v", rows[1][2])
	}
}

func TestCSVGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte("n\n1\n2\n")); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	data := buf.Bytes()
	c := NewCSV(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, CSVOptions{Header: HeaderPresent})
	rows := readAll(t, c)
	if len(rows) != 2 || !value.Equal(rows[1][0], value.Int(2)) {
		t.Fatalf("gzip rows = %v", rows)
	}
}

func TestCSVRestartable(t *testing.T) {
	c := NewCSV(stringOpener("n\n1\n2\n3\n"), CSVOptions{})
	first := readAll(t, c)
	second := readAll(t, c)
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("re-read changed row count: %d then %d", len(first), len(second))
	}
}
