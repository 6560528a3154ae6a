// Package source provides row streams that feed the engine's stream-backed
// dataset leaf: delimited text files, shapefile attribute tables and
// compiled sequence patterns. Readers deliver raw records on a serial loop
// while field-to-value coercion runs on the shared worker pool.
package source

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/SimonWaldherr/tabflow/internal/job"
	"github.com/SimonWaldherr/tabflow/internal/raster"
	"github.com/SimonWaldherr/tabflow/internal/value"
)

// HeaderMode controls header row handling.
type HeaderMode string

const (
	// HeaderAuto decides from the data: a first row without numeric-looking
	// fields above numeric-looking data is a header.
	HeaderAuto HeaderMode = "auto"
	// HeaderPresent always treats the first row as column names.
	HeaderPresent HeaderMode = "present"
	// HeaderAbsent generates column names and keeps the first row as data.
	HeaderAbsent HeaderMode = "absent"
)

// CSVOptions configures a CSV source. The zero value auto-detects everything.
type CSVOptions struct {
	// Delimiter forces a field separator; 0 auto-detects among , ; tab |.
	Delimiter rune
	Header    HeaderMode
}

// CSV streams typed rows from delimited text. Gzip input is transparent.
// The source is restartable: every Read opens a fresh reader.
type CSV struct {
	open func() (io.ReadCloser, error)
	opts CSVOptions

	sniffed bool
	delim   rune
	header  bool
	columns []raster.Column
}

// NewCSVFile builds a CSV source over a file path.
func NewCSVFile(path string, opts CSVOptions) *CSV {
	return NewCSV(func() (io.ReadCloser, error) { return os.Open(path) }, opts)
}

// NewCSV builds a CSV source over an arbitrary reopenable stream.
func NewCSV(open func() (io.ReadCloser, error), opts CSVOptions) *CSV {
	if opts.Header == "" {
		opts.Header = HeaderAuto
	}
	return &CSV{open: open, opts: opts}
}

// sniff detects delimiter, header and column names from a bounded sample.
func (c *CSV) sniff() error {
	if c.sniffed {
		return nil
	}
	rc, err := c.open()
	if err != nil {
		return fmt.Errorf("csv open: %w", err)
	}
	defer rc.Close()
	br, err := maybeGzip(rc)
	if err != nil {
		return err
	}
	sample, _ := br.Peek(64 * 1024)
	lines := sampleLines(string(sample), 100)
	if len(lines) == 0 {
		return errors.New("csv: empty input")
	}

	c.delim = c.opts.Delimiter
	if c.delim == 0 {
		c.delim = detectDelimiter(lines)
	}
	records := make([][]string, 0, len(lines))
	for _, ln := range lines {
		records = append(records, splitOutsideQuotes(ln, c.delim))
	}
	switch c.opts.Header {
	case HeaderPresent:
		c.header = true
	case HeaderAbsent:
		c.header = false
	default:
		c.header = looksLikeHeader(records)
	}
	if c.header {
		c.columns = columnNames(records[0])
	} else {
		c.columns = columnNames(make([]string, len(records[0])))
	}
	c.sniffed = true
	return nil
}

// Columns reports the column set detected from the input sample.
func (c *CSV) Columns() ([]raster.Column, error) {
	if err := c.sniff(); err != nil {
		return nil, err
	}
	return append([]raster.Column(nil), c.columns...), nil
}

// decodeChunk is the unit of work handed to the pool: 64 raw records decode
// to typed rows together.
const decodeChunk = 64

// Read streams the file. The read loop stays on this goroutine; record
// decoding runs through the job's worker pool one chunk ahead.
func (c *CSV) Read(j *job.Job, emit func(row []value.Value) error) error {
	if err := c.sniff(); err != nil {
		return err
	}
	rc, err := c.open()
	if err != nil {
		return fmt.Errorf("csv open: %w", err)
	}
	defer rc.Close()
	br, err := maybeGzip(rc)
	if err != nil {
		return err
	}
	cr := csv.NewReader(br)
	cr.Comma = c.delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	if c.header {
		if _, err := cr.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("csv header: %w", err)
		}
	}

	// The reader goroutine stays ahead of decoding by a few chunks.
	type rawChunk struct {
		records [][]string
		err     error
	}
	chunks := make(chan rawChunk, 4)
	go func() {
		defer close(chunks)
		buf := make([][]string, 0, decodeChunk)
		for {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				chunks <- rawChunk{err: fmt.Errorf("csv read: %w", err)}
				return
			}
			buf = append(buf, rec)
			if len(buf) == decodeChunk {
				chunks <- rawChunk{records: buf}
				if j.Cancelled() {
					return
				}
				buf = make([][]string, 0, decodeChunk)
			}
		}
		if len(buf) > 0 {
			chunks <- rawChunk{records: buf}
		}
	}()

	width := len(c.columns)
	for chunk := range chunks {
		if chunk.err != nil {
			return chunk.err
		}
		rows, err := job.MapReduce(j, chunk.records,
			func(records [][]string) ([][]value.Value, error) {
				out := make([][]value.Value, len(records))
				for i, rec := range records {
					out[i] = decodeRecord(rec, width)
				}
				return out, nil
			},
			func(acc, part [][]value.Value) [][]value.Value {
				return append(acc, part...)
			})
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := emit(row); err != nil {
				return err
			}
		}
		if j.Cancelled() {
			return nil
		}
	}
	return nil
}

// decodeRecord coerces raw fields to typed values, padding or truncating
// ragged rows to the detected width.
func decodeRecord(rec []string, width int) []value.Value {
	row := make([]value.Value, width)
	for i := range row {
		if i < len(rec) {
			row[i] = decodeField(rec[i])
		} else {
			row[i] = value.Empty
		}
	}
	return row
}

func decodeField(s string) value.Value {
	t := strings.TrimSpace(s)
	if t == "" {
		return value.Empty
	}
	if n, err := strconv.ParseInt(t, 10, 64); err == nil {
		return value.Int(n)
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		return value.Double(f)
	}
	switch strings.ToLower(t) {
	case "true":
		return value.True
	case "false":
		return value.False
	}
	return value.String(s)
}

// ------------------------------ detection ------------------------------

// maybeGzip wraps the reader if it starts with the gzip magic bytes.
func maybeGzip(r io.Reader) (*bufio.Reader, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("csv gzip: %w", err)
		}
		return bufio.NewReader(zr), nil
	}
	return br, nil
}

func sampleLines(s string, maxLines int) []string {
	var lines []string
	for _, ln := range strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' }) {
		if ln == "" {
			continue
		}
		lines = append(lines, ln)
		if len(lines) == maxLines {
			break
		}
	}
	return lines
}

var delimiterCandidates = []rune{',', ';', '\t', '|'}

// detectDelimiter picks the candidate with the highest consistent per-line
// count outside quoted sections.
func detectDelimiter(lines []string) rune {
	best := ','
	bestScore := -1
	for _, cand := range delimiterCandidates {
		counts := make(map[int]int)
		for _, ln := range lines {
			counts[countOutsideQuotes(ln, cand)]++
		}
		// Score: the most common nonzero count, weighted by how many lines
		// agree on it.
		score := 0
		for n, lines := range counts {
			if n > 0 && lines > score {
				score = lines
			}
		}
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	return best
}

func countOutsideQuotes(ln string, delim rune) int {
	n := 0
	inQuotes := false
	for _, r := range ln {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			n++
		}
	}
	return n
}

func splitOutsideQuotes(ln string, delim rune) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range ln {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	fields = append(fields, cur.String())
	return fields
}

// looksLikeHeader holds when the first row contains no numeric-looking
// field while later rows do.
func looksLikeHeader(records [][]string) bool {
	if len(records) < 2 {
		return false
	}
	for _, f := range records[0] {
		if looksNumeric(f) {
			return false
		}
	}
	for _, rec := range records[1:] {
		for _, f := range rec {
			if looksNumeric(f) {
				return true
			}
		}
	}
	return false
}

func looksNumeric(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return false
	}
	_, err := strconv.ParseFloat(t, 64)
	return err == nil
}

// columnNames trims, fills and dedupes a header row into a valid column set.
func columnNames(header []string) []raster.Column {
	cols := make([]raster.Column, len(header))
	seen := make(map[string]bool, len(header))
	for i, raw := range header {
		name := strings.TrimSpace(raw)
		if name == "" {
			name = fmt.Sprintf("column%d", i+1)
		}
		base := name
		for n := 2; seen[raster.Col(name).Key()]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		cols[i] = raster.Col(name)
		seen[cols[i].Key()] = true
	}
	return cols
}
