// Package dataset provides the rectangular table passed between pipeline
// stages, along with column selection, random partitioning, and CSV persistence.
package dataset

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/haasonsaas/modelgate/internal/errs"
)

// Dataset is a rectangular table: every row has exactly len(Columns) cells.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// New creates a dataset, rejecting ragged rows and duplicate column names.
func New(columns []string, rows [][]string) (*Dataset, error) {
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, ok := seen[c]; ok {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		seen[c] = struct{}{}
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(columns))
		}
	}
	return &Dataset{Columns: columns, Rows: rows}, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Shape returns (rows, columns).
func (d *Dataset) Shape() (int, int) {
	if d == nil {
		return 0, 0
	}
	return len(d.Rows), len(d.Columns)
}

// Index returns the position of a column, or -1.
func (d *Dataset) Index(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column's cells.
func (d *Dataset) Column(name string) ([]string, error) {
	idx := d.Index(name)
	if idx < 0 {
		return nil, errs.Schema(fmt.Sprintf("column %q not found", name), nil)
	}
	out := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// DropColumns returns a new dataset without the named columns. Every named
// column must be present; a missing one yields a schema error and no result.
func (d *Dataset) DropColumns(names ...string) (*Dataset, error) {
	drop := make(map[int]struct{}, len(names))
	for _, name := range names {
		idx := d.Index(name)
		if idx < 0 {
			return nil, errs.Schema(fmt.Sprintf("column %q not found", name), nil)
		}
		drop[idx] = struct{}{}
	}

	keep := make([]int, 0, len(d.Columns)-len(drop))
	columns := make([]string, 0, len(d.Columns)-len(drop))
	for i, c := range d.Columns {
		if _, ok := drop[i]; ok {
			continue
		}
		keep = append(keep, i)
		columns = append(columns, c)
	}

	rows := make([][]string, len(d.Rows))
	for r, row := range d.Rows {
		out := make([]string, len(keep))
		for j, idx := range keep {
			out[j] = row[idx]
		}
		rows[r] = out
	}
	return &Dataset{Columns: columns, Rows: rows}, nil
}

// Select returns a new dataset with only the named columns, in the given
// order. A missing column yields a schema error.
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	indices := make([]int, len(names))
	for i, name := range names {
		idx := d.Index(name)
		if idx < 0 {
			return nil, errs.Schema(fmt.Sprintf("column %q not found", name), nil)
		}
		indices[i] = idx
	}
	rows := make([][]string, len(d.Rows))
	for r, row := range d.Rows {
		out := make([]string, len(indices))
		for j, idx := range indices {
			out[j] = row[idx]
		}
		rows[r] = out
	}
	return New(append([]string(nil), names...), rows)
}

// SplitXY separates the target column from the features.
func (d *Dataset) SplitXY(target string) (*Dataset, []string, error) {
	y, err := d.Column(target)
	if err != nil {
		return nil, nil, err
	}
	x, err := d.DropColumns(target)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

// subset returns the rows at the given indices, sharing row storage.
func (d *Dataset) subset(indices []int) *Dataset {
	rows := make([][]string, len(indices))
	for i, idx := range indices {
		rows[i] = d.Rows[idx]
	}
	return &Dataset{Columns: append([]string(nil), d.Columns...), Rows: rows}
}

// SplitOptions configures a train/test partition.
type SplitOptions struct {
	// TestRatio is the fraction of rows assigned to the test set, in (0, 1).
	TestRatio float64

	// Seed makes the partition reproducible when non-nil.
	Seed *int64
}

// Split randomly partitions rows into disjoint train and test sets. The test
// set receives ceil(TestRatio * n) rows; neither side may end up empty.
func (d *Dataset) Split(opts SplitOptions) (train, test *Dataset, err error) {
	if opts.TestRatio <= 0 || opts.TestRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be in (0, 1), got %v", opts.TestRatio)
	}
	n := d.Len()
	nTest := testSize(n, opts.TestRatio)
	if nTest == 0 || nTest == n {
		return nil, nil, fmt.Errorf("split of %d rows at ratio %v leaves an empty partition", n, opts.TestRatio)
	}

	seed := time.Now().UnixNano()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	return d.subset(perm[nTest:]), d.subset(perm[:nTest]), nil
}

func testSize(n int, ratio float64) int {
	size := int(ratio * float64(n))
	if float64(size) < ratio*float64(n) {
		size++
	}
	return size
}
