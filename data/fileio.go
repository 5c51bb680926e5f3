package data

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Read augments the dataset from a text stream. The first line must be a
// header of the form "# N D"; subsequent lines beginning with '#' are
// comments. Each data line holds "p x1 … xD y" separated by whitespace.
// On any error the dataset is left exactly as it was before the call.
func (s *Dataset) Read(r io.Reader) error {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return fmt.Errorf("data: missing header: %w", sc.Err())
	}
	var n, d int
	if _, err := fmt.Sscanf(sc.Text(), "# %d %d", &n, &d); err != nil {
		return fmt.Errorf("data: malformed header %q", sc.Text())
	}
	if s.dims != 0 && d != s.dims {
		return fmt.Errorf("data: file dimensionality %d does not match dataset %d", d, s.dims)
	}

	records := make([]Datum, 0, n)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != d+2 {
			return fmt.Errorf("data: expected %d fields, got %d in %q", d+2, len(fields), line)
		}
		p, err := strconv.Atoi(fields[0])
		if err != nil || p < 0 {
			return fmt.Errorf("data: bad output index %q", fields[0])
		}
		x := mat.NewVecDense(d, nil)
		for j := 0; j < d; j++ {
			v, err := strconv.ParseFloat(fields[1+j], 64)
			if err != nil {
				return fmt.Errorf("data: bad input value %q: %w", fields[1+j], err)
			}
			x.SetVec(j, v)
		}
		y, err := strconv.ParseFloat(fields[d+1], 64)
		if err != nil {
			return fmt.Errorf("data: bad observed value %q: %w", fields[d+1], err)
		}
		records = append(records, Datum{P: p, X: x, Y: y})
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("data: read: %w", err)
	}

	// Commit only after the whole stream parsed cleanly.
	if s.dims == 0 && len(records) > 0 {
		s.dims = d
	}
	s.records = append(s.records, records...)
	s.sort()
	return nil
}

// ReadFile augments the dataset from a file on disk.
func (s *Dataset) ReadFile(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	defer fh.Close()
	return s.Read(fh)
}

// Write emits the dataset in the text format accepted by Read.
func (s *Dataset) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "# %d %d\n", len(s.records), s.dims); err != nil {
		return fmt.Errorf("data: write: %w", err)
	}
	for i := range s.records {
		di := &s.records[i]
		if _, err := fmt.Fprintf(bw, "%d", di.P); err != nil {
			return fmt.Errorf("data: write: %w", err)
		}
		for d := 0; d < s.dims; d++ {
			if _, err := fmt.Fprintf(bw, " %e", di.X.AtVec(d)); err != nil {
				return fmt.Errorf("data: write: %w", err)
			}
		}
		if _, err := fmt.Fprintf(bw, " %e\n", di.Y); err != nil {
			return fmt.Errorf("data: write: %w", err)
		}
	}
	return bw.Flush()
}

// WriteFile emits the dataset to a file on disk.
func (s *Dataset) WriteFile(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	defer fh.Close()
	return s.Write(fh)
}
