package model

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/haasonsaas/modelgate/internal/dataset"
)

// ColumnKind selects how a column is encoded.
type ColumnKind string

const (
	KindNumeric     ColumnKind = "numeric"
	KindCategorical ColumnKind = "categorical"
)

// ColumnSpec is the fitted state for one input column.
type ColumnSpec struct {
	Name string
	Kind ColumnKind

	// numeric columns are standardized
	Mean float64
	Std  float64

	// categorical columns are one-hot encoded; unseen values encode as all zeros
	Categories []string
}

// ColumnTransformer standardizes numeric columns and one-hot encodes
// categorical ones, in the order the columns were fitted.
type ColumnTransformer struct {
	Columns []ColumnSpec
}

// FitColumnTransformer learns per-column encodings from x. Columns listed in
// categorical are one-hot encoded; every other column must parse as a number.
func FitColumnTransformer(x *dataset.Dataset, categorical []string) (*ColumnTransformer, error) {
	if x.Len() == 0 {
		return nil, fmt.Errorf("cannot fit transform on an empty dataset")
	}
	isCategorical := make(map[string]bool, len(categorical))
	for _, c := range categorical {
		isCategorical[c] = true
	}

	ct := &ColumnTransformer{}
	for _, name := range x.Columns {
		values, err := x.Column(name)
		if err != nil {
			return nil, err
		}
		if isCategorical[name] {
			ct.Columns = append(ct.Columns, fitCategorical(name, values))
			continue
		}
		spec, err := fitNumeric(name, values)
		if err != nil {
			return nil, err
		}
		ct.Columns = append(ct.Columns, spec)
	}
	return ct, nil
}

func fitCategorical(name string, values []string) ColumnSpec {
	set := make(map[string]struct{})
	for _, v := range values {
		set[strings.TrimSpace(v)] = struct{}{}
	}
	categories := make([]string, 0, len(set))
	for v := range set {
		categories = append(categories, v)
	}
	sort.Strings(categories)
	return ColumnSpec{Name: name, Kind: KindCategorical, Categories: categories}
}

func fitNumeric(name string, values []string) (ColumnSpec, error) {
	var nums []float64
	sum := 0.0
	for i, v := range values {
		if IsMissing(v) {
			continue
		}
		f, err := parseFloat(v)
		if err != nil {
			return ColumnSpec{}, fmt.Errorf("column %q row %d: %w", name, i, err)
		}
		nums = append(nums, f)
		sum += f
	}
	if len(nums) == 0 {
		return ColumnSpec{Name: name, Kind: KindNumeric, Std: 1}, nil
	}
	mean := sum / float64(len(nums))
	variance := 0.0
	for _, f := range nums {
		variance += (f - mean) * (f - mean)
	}
	std := math.Sqrt(variance / float64(len(nums)))
	if std == 0 {
		std = 1
	}
	return ColumnSpec{Name: name, Kind: KindNumeric, Mean: mean, Std: std}, nil
}

// Width returns the number of output features.
func (c *ColumnTransformer) Width() int {
	w := 0
	for _, spec := range c.Columns {
		if spec.Kind == KindCategorical {
			w += len(spec.Categories)
		} else {
			w++
		}
	}
	return w
}

// Transform encodes x. Every fitted column must be present in x.
func (c *ColumnTransformer) Transform(x *dataset.Dataset) ([][]float64, error) {
	indices := make([]int, len(c.Columns))
	for i, spec := range c.Columns {
		idx := x.Index(spec.Name)
		if idx < 0 {
			return nil, fmt.Errorf("column %q missing from input", spec.Name)
		}
		indices[i] = idx
	}

	width := c.Width()
	out := make([][]float64, x.Len())
	for r, row := range x.Rows {
		vec := make([]float64, 0, width)
		for i, spec := range c.Columns {
			cell := row[indices[i]]
			switch spec.Kind {
			case KindCategorical:
				onehot := make([]float64, len(spec.Categories))
				if pos := sort.SearchStrings(spec.Categories, strings.TrimSpace(cell)); pos < len(spec.Categories) && spec.Categories[pos] == strings.TrimSpace(cell) {
					onehot[pos] = 1
				}
				vec = append(vec, onehot...)
			default:
				if IsMissing(cell) {
					// imputed with the fitted mean
					vec = append(vec, 0)
					continue
				}
				f, err := parseFloat(cell)
				if err != nil {
					return nil, fmt.Errorf("column %q row %d: %w", spec.Name, r, err)
				}
				vec = append(vec, (f-spec.Mean)/spec.Std)
			}
		}
		out[r] = vec
	}
	return out, nil
}

// IsMissing reports cells that carry no numeric value.
func IsMissing(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "na", "n/a", "nan", "null":
		return true
	}
	return false
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q as number: %w", v, err)
	}
	return f, nil
}
