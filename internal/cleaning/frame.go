package cleaning

import (
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// missing is the cell spelling gota reads back as NaN for every series type
const missing = "NaN"

// columnStrings returns the cells of s as strings, missing cells as "NaN".
// Floats keep full precision; gota's own Records rounds to six places.
func columnStrings(s series.Series) []string {
	out := make([]string, s.Len())
	nan := s.IsNaN()
	if s.Type() == series.Float {
		vals := s.Float()
		for i, v := range vals {
			if nan[i] || math.IsNaN(v) {
				out[i] = missing
				continue
			}
			out[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return out
	}
	recs := s.Records()
	for i, r := range recs {
		if nan[i] {
			out[i] = missing
			continue
		}
		out[i] = r
	}
	return out
}

// floatValues returns the float cells of s with missing cells as NaN
func floatValues(s series.Series) []float64 {
	vals := s.Float()
	nan := s.IsNaN()
	out := make([]float64, len(vals))
	for i, v := range vals {
		if nan[i] {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
	}
	return out
}

// floatSeries builds a Float series; NaN entries become missing cells
func floatSeries(name string, vals []float64) series.Series {
	cells := make([]string, len(vals))
	for i, v := range vals {
		if math.IsNaN(v) {
			cells[i] = missing
			continue
		}
		cells[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return series.New(cells, series.Float, name)
}

// take returns the rows of df at idx, in order. It rebuilds every column
// so an empty selection yields an empty frame with the same schema.
func take(df dataframe.DataFrame, idx []int) dataframe.DataFrame {
	names := df.Names()
	cols := make([]series.Series, len(names))
	for c, name := range names {
		src := df.Col(name)
		cells := columnStrings(src)
		picked := make([]string, len(idx))
		for i, row := range idx {
			picked[i] = cells[row]
		}
		cols[c] = series.New(picked, src.Type(), name)
	}
	return dataframe.New(cols...)
}

// replaceColumn swaps in s, or appends it when the column is new
func replaceColumn(df dataframe.DataFrame, s series.Series) dataframe.DataFrame {
	return df.Mutate(s)
}

func isIDColumn(name string) bool {
	return strings.Contains(strings.ToLower(name), "id")
}

func isDateColumn(name string) bool {
	return strings.Contains(strings.ToLower(name), "date")
}

func isMissing(cell string) bool {
	return cell == missing
}

func hasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}
