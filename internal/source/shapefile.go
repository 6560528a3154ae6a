package source

import (
	"fmt"
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"

	"github.com/SimonWaldherr/tabflow/internal/job"
	"github.com/SimonWaldherr/tabflow/internal/raster"
	"github.com/SimonWaldherr/tabflow/internal/value"
)

// Shapefile streams the attribute table of an ESRI shapefile, one row per
// shape. DBF attributes decode to typed values; the geometry renders into a
// trailing "geometry" column as a Pack of coordinates.
type Shapefile struct {
	path string
}

// NewShapefile builds a source over a .shp path (the matching .dbf is
// resolved by the reader).
func NewShapefile(path string) *Shapefile {
	return &Shapefile{path: path}
}

// geometryColumn is the synthesized trailing column.
const geometryColumn = "geometry"

func (s *Shapefile) Columns() ([]raster.Column, error) {
	r, err := shp.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("shapefile open: %w", err)
	}
	defer r.Close()
	fields := r.Fields()
	names := make([]string, len(fields)+1)
	for i, f := range fields {
		names[i] = f.String()
	}
	names[len(fields)] = geometryColumn
	return dedupedColumns(names), nil
}

func dedupedColumns(names []string) []raster.Column {
	cols := make([]raster.Column, len(names))
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("field%d", i+1)
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

// Read walks the shapes in file order, polling cancellation per row.
func (s *Shapefile) Read(j *job.Job, emit func(row []value.Value) error) error {
	r, err := shp.Open(s.path)
	if err != nil {
		return fmt.Errorf("shapefile open: %w", err)
	}
	defer r.Close()
	fields := r.Fields()
	for r.Next() {
		if j.Cancelled() {
			return nil
		}
		n, shape := r.Shape()
		row := make([]value.Value, len(fields)+1)
		for i := range fields {
			row[i] = decodeField(r.ReadAttribute(n, i))
		}
		row[len(fields)] = geometryValue(shape)
		if err := emit(row); err != nil {
			return err
		}
	}
	return r.Err()
}

// geometryValue packs a shape's coordinates: points as "x,y", everything
// else as its bounding box "minx,miny,maxx,maxy".
func geometryValue(shape shp.Shape) value.Value {
	switch g := shape.(type) {
	case *shp.Point:
		return value.String(value.PackEncode([]string{coord(g.X), coord(g.Y)}))
	case *shp.PointZ:
		return value.String(value.PackEncode([]string{coord(g.X), coord(g.Y), coord(g.Z)}))
	case *shp.Null:
		return value.Empty
	default:
		box := shape.BBox()
		return value.String(value.PackEncode([]string{
			coord(box.MinX), coord(box.MinY), coord(box.MaxX), coord(box.MaxY),
		}))
	}
}

func coord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
