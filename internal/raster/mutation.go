package raster

import (
	"fmt"

	"github.com/SimonWaldherr/tabflow/internal/job"
	"github.com/SimonWaldherr/tabflow/internal/value"
)

// MutationKind enumerates the uniform mutation contract shared by mutable
// row sources.
type MutationKind int

const (
	MutationCreate MutationKind = iota
	MutationAlter
	MutationTruncate
	MutationInsert
	MutationUpdate
	MutationDelete
)

func (k MutationKind) String() string {
	switch k {
	case MutationCreate:
		return "create"
	case MutationAlter:
		return "alter"
	case MutationTruncate:
		return "truncate"
	case MutationInsert:
		return "insert"
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	}
	return "unknown"
}

// Schema is the column layout carried by create/alter mutations.
type Schema struct {
	Columns []Column
}

// Mutation describes one atomic change. A single mutation either fully
// applies or reports a failure; there is no partial success.
type Mutation struct {
	Kind   MutationKind
	Schema Schema
	Row    []value.Value
	// Key selects the affected rows for update/delete (all key columns must
	// match, compared with value equality).
	Key map[string]value.Value
	// Set holds the per-column replacement values for update.
	Set map[string]value.Value
}

func Create(s Schema) Mutation              { return Mutation{Kind: MutationCreate, Schema: s} }
func Alter(s Schema) Mutation               { return Mutation{Kind: MutationAlter, Schema: s} }
func Truncate() Mutation                    { return Mutation{Kind: MutationTruncate} }
func Insert(row []value.Value) Mutation     { return Mutation{Kind: MutationInsert, Row: row} }
func Update(key, set map[string]value.Value) Mutation {
	return Mutation{Kind: MutationUpdate, Key: key, Set: set}
}
func Delete(key map[string]value.Value) Mutation { return Mutation{Kind: MutationDelete, Key: key} }

// Perform applies a mutation asynchronously and reports success or a
// described failure through cb, exactly once. Mutations on one raster must
// be serialized by a single coordinating job.
func (r *Raster) Perform(m Mutation, j *job.Job, cb func(error)) {
	go func() {
		if j != nil && j.Cancelled() {
			cb(j.Err())
			return
		}
		cb(r.apply(m))
	}()
}

func (r *Raster) apply(m Mutation) error {
	switch m.Kind {
	case MutationCreate:
		if err := r.setColumns(m.Schema.Columns); err != nil {
			return err
		}
		r.rows = nil
		return nil
	case MutationAlter:
		return r.alter(m.Schema)
	case MutationTruncate:
		r.rows = nil
		return nil
	case MutationInsert:
		r.AddRows([][]value.Value{m.Row})
		return nil
	case MutationUpdate:
		return r.update(m.Key, m.Set)
	case MutationDelete:
		return r.delete(m.Key)
	}
	return fmt.Errorf("raster: unknown mutation kind %d", m.Kind)
}

// alter reshapes the raster to the target schema: kept columns carry their
// data over, new columns fill with Empty, dropped columns disappear.
func (r *Raster) alter(s Schema) error {
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if seen[c.Key()] {
			return fmt.Errorf("raster: alter would duplicate column %q", c.Name)
		}
		seen[c.Key()] = true
	}
	mapping := make([]int, len(s.Columns))
	for i, c := range s.Columns {
		mapping[i] = r.ColumnIndex(c.Name)
	}
	newRows := make([][]value.Value, len(r.rows))
	for ri, row := range r.rows {
		nr := make([]value.Value, len(s.Columns))
		for ci, src := range mapping {
			if src >= 0 {
				nr[ci] = row[src]
			} else {
				nr[ci] = value.Empty
			}
		}
		newRows[ri] = nr
	}
	if err := r.setColumns(s.Columns); err != nil {
		return err
	}
	r.rows = newRows
	return nil
}

func (r *Raster) matchKey(row []value.Value, key map[string]value.Value) (bool, error) {
	for name, want := range key {
		idx := r.ColumnIndex(name)
		if idx < 0 {
			return false, fmt.Errorf("raster: key column %q does not exist", name)
		}
		if !value.Equal(row[idx], want) {
			return false, nil
		}
	}
	return true, nil
}

func (r *Raster) update(key, set map[string]value.Value) error {
	for name := range set {
		if r.ColumnIndex(name) < 0 {
			return fmt.Errorf("raster: update column %q does not exist", name)
		}
	}
	for name := range key {
		if r.ColumnIndex(name) < 0 {
			return fmt.Errorf("raster: key column %q does not exist", name)
		}
	}
	for _, row := range r.rows {
		ok, _ := r.matchKey(row, key)
		if !ok {
			continue
		}
		for name, v := range set {
			row[r.ColumnIndex(name)] = v
		}
	}
	return nil
}

func (r *Raster) delete(key map[string]value.Value) error {
	for name := range key {
		if r.ColumnIndex(name) < 0 {
			return fmt.Errorf("raster: key column %q does not exist", name)
		}
	}
	kept := r.rows[:0]
	for _, row := range r.rows {
		ok, _ := r.matchKey(row, key)
		if !ok {
			kept = append(kept, row)
		}
	}
	r.rows = kept
	return nil
}
