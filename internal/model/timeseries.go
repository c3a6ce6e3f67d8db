package model

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Simple struct for observed data
type TimeSeries struct {
	// T x K matrix, NaN marks a missing observation
	Y *mat.Dense
	// Time stamp of each row
	Time []float64
	// List of variable Names
	VarNames []string
}

// Len returns the number of time points.
func (ts *TimeSeries) Len() int {
	r, _ := ts.Y.Dims()
	return r
}

// Columns returns the T x len(names) sub-matrix of the named series, in the
// order given.
func (ts *TimeSeries) Columns(names []string) (*mat.Dense, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		idx[i] = -1
		for j, v := range ts.VarNames {
			if v == n {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("series %q not in data (have %v)", n, ts.VarNames)
		}
	}
	T := ts.Len()
	out := mat.NewDense(T, len(names), nil)
	for t := 0; t < T; t++ {
		for i, j := range idx {
			out.Set(t, i, ts.Y.At(t, j))
		}
	}
	return out, nil
}

// LoadCSVToTimeSeries reads CSV file:
//
//   - The first row is a header with variable names
//   - A first column named "time", "t" or "date" holds numeric time stamps;
//     without it time is taken as 0,1,2,...
//   - Empty cells and "nan" are missing observations
func LoadCSVToTimeSeries(path string) (*TimeSeries, error) {
	// 1. Open file
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ts, err := ReadTimeSeries(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ts, nil
}

// ReadTimeSeries parses CSV data in the LoadCSVToTimeSeries layout.
func ReadTimeSeries(in io.Reader) (*TimeSeries, error) {
	r := csv.NewReader(in)
	r.TrimLeadingSpace = true

	// 2. Read header row
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	timeCol := false
	switch strings.ToLower(header[0]) {
	case "time", "t", "date":
		timeCol = true
		header = header[1:]
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("empty header")
	}
	K := len(header) // number of variables

	var (
		data  []float64 // flat data for mat.Dense
		times []float64 // time index
		row   int       // row counter
	)

	// 3. Read each data row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err) // +2 for header + 1-based
		}

		if len(record) == 1 && record[0] == "" {
			continue
		}

		stamp := float64(row)
		if timeCol {
			stamp, err = strconv.ParseFloat(record[0], 64)
			if err != nil {
				return nil, fmt.Errorf("parse time at row %d (%q): %w", row+2, record[0], err)
			}
			record = record[1:]
		}

		if len(record) != K {
			return nil, fmt.Errorf(
				"row %d: expected %d columns, got %d",
				row+2, K, len(record),
			)
		}

		for j, s := range record {
			v, err := parseCell(s)
			if err != nil {
				return nil, fmt.Errorf(
					"parse float at row %d col %d (%q): %w",
					row+2, j+1, s, err,
				)
			}
			data = append(data, v)
		}

		times = append(times, stamp)
		row++
	}

	if row == 0 {
		return nil, fmt.Errorf("no data rows")
	}

	// 4. Build TimeSeries
	return &TimeSeries{
		Y:        mat.NewDense(row, K, data),
		Time:     times,
		VarNames: header,
	}, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "na") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
