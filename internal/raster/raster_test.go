package raster

import (
	"testing"

	"github.com/SimonWaldherr/tabflow/internal/job"
	"github.com/SimonWaldherr/tabflow/internal/value"
)

func TestColumnCaseInsensitivity(t *testing.T) {
	if !Col("Name").Equal(Col("nAME")) {
		t.Fatalf("column equality must ignore case")
	}
	if Col("Name").Key() != Col("NAME").Key() {
		t.Fatalf("folded keys must match")
	}
	if _, err := New([]Column{Col("a"), Col("A")}); err == nil {
		t.Fatalf("duplicate-by-case columns must be rejected")
	}
	r := MustNew([]Column{Col("Name"), Col("Age")})
	if r.ColumnIndex("nAme") != 0 || r.ColumnIndex("AGE") != 1 {
		t.Fatalf("case-insensitive lookup failed")
	}
	if r.ColumnIndex("missing") != -1 {
		t.Fatalf("missing column must be -1")
	}
}

func TestAddRowsPadsAndTruncates(t *testing.T) {
	r := MustNew([]Column{Col("a"), Col("b")})
	r.AddRows([][]Value{
		{value.Int(1)},
		{value.Int(2), value.Int(3), value.Int(4)},
	})
	if r.RowCount() != 2 {
		t.Fatalf("RowCount = %d", r.RowCount())
	}
	if !r.Cell(0, 1).IsEmpty() {
		t.Fatalf("short row must pad with Empty")
	}
	if len(r.Row(1)) != 2 {
		t.Fatalf("long row must truncate to column count")
	}
}

func TestAddColumnsAndClone(t *testing.T) {
	r := MustNew([]Column{Col("a")})
	r.AddRows([][]Value{{value.Int(1)}})
	if err := r.AddColumns([]Column{Col("b")}); err != nil {
		t.Fatalf("AddColumns: %v", err)
	}
	if !r.Cell(0, 1).IsEmpty() {
		t.Fatalf("existing rows must pad new columns with Empty")
	}
	if err := r.AddColumns([]Column{Col("A")}); err == nil {
		t.Fatalf("case-duplicate column must be rejected")
	}
	cp := r.Clone()
	cp.SetCell(0, 0, value.Int(99))
	if v, _ := r.Cell(0, 0).Int(); v != 1 {
		t.Fatalf("clone must not share row storage")
	}
}

func perform(t *testing.T, r *Raster, m Mutation) error {
	t.Helper()
	j := job.New(job.Background)
	done := make(chan error, 1)
	r.Perform(m, j, func(err error) { done <- err })
	return <-done
}

func TestMutationContract(t *testing.T) {
	r := MustNew(nil)
	schema := Schema{Columns: []Column{Col("id"), Col("name")}}
	if err := perform(t, r, Create(schema)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := perform(t, r, Insert([]Value{value.Int(1), value.String("alpha")})); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := perform(t, r, Insert([]Value{value.Int(2), value.String("beta")})); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Update by key.
	key := map[string]value.Value{"id": value.Int(2)}
	set := map[string]value.Value{"name": value.String("BETA")}
	if err := perform(t, r, Update(key, set)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if r.Cell(1, 1).Text() != "BETA" {
		t.Fatalf("update did not apply: %v", r.Cell(1, 1).Text())
	}

	// Alter keeps surviving data, adds Empty for new columns.
	alter := Schema{Columns: []Column{Col("name"), Col("score")}}
	if err := perform(t, r, Alter(alter)); err != nil {
		t.Fatalf("alter: %v", err)
	}
	if r.ColumnIndex("id") != -1 || r.Cell(0, 0).Text() != "alpha" || !r.Cell(0, 1).IsEmpty() {
		t.Fatalf("alter reshaping wrong: %v", r.Rows())
	}
	// Alter with case-colliding names fails and changes nothing.
	bad := Schema{Columns: []Column{Col("x"), Col("X")}}
	if err := perform(t, r, Alter(bad)); err == nil {
		t.Fatalf("case-colliding alter must fail")
	}
	if r.ColumnIndex("name") != 0 {
		t.Fatalf("failed alter must leave schema untouched")
	}

	// Delete by key, then truncate.
	if err := perform(t, r, Delete(map[string]value.Value{"name": value.String("BETA")})); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if r.RowCount() != 1 {
		t.Fatalf("delete left %d rows", r.RowCount())
	}
	if err := perform(t, r, Truncate()); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if r.RowCount() != 0 {
		t.Fatalf("truncate left rows behind")
	}

	// Unknown key column is a described failure.
	if err := perform(t, r, Delete(map[string]value.Value{"ghost": value.Int(1)})); err == nil {
		t.Fatalf("unknown key column must fail")
	}

	// Cancelled jobs do not mutate.
	j := job.New(job.Background)
	j.Cancel()
	done := make(chan error, 1)
	r.Perform(Insert([]Value{value.Int(9)}), j, func(err error) { done <- err })
	if err := <-done; err == nil {
		t.Fatalf("cancelled mutation must report an error")
	}
}
