package frame

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// NullMarker is written for missing values.
const NullMarker = "NA"

var nullTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"NaN":  true,
	"nan":  true,
	"null": true,
}

// IsNullToken reports whether a raw cell denotes a missing value.
func IsNullToken(s string) bool {
	return nullTokens[strings.TrimSpace(s)]
}

// ReadCSV parses a header-first CSV. A column is numeric when every non-null
// cell parses as a number; text lists columns kept as text regardless.
func ReadCSV(r io.Reader, text ...string) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	raw := make([][]string, len(header))
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read row %d", line)
		}
		if len(rec) > len(header) {
			return nil, errors.Errorf("row %d has %d fields, header has %d", line, len(rec), len(header))
		}
		for j := range header {
			cell := ""
			if j < len(rec) {
				cell = rec[j]
			}
			raw[j] = append(raw[j], cell)
		}
	}

	forceText := make(map[string]bool, len(text))
	for _, n := range text {
		forceText[n] = true
	}

	cols := make([]*Column, len(header))
	for j, name := range header {
		cols[j] = parseColumn(name, raw[j], forceText[name])
	}
	return New(cols...)
}

func parseColumn(name string, cells []string, forceText bool) *Column {
	valid := make([]bool, len(cells))
	for i, s := range cells {
		valid[i] = !IsNullToken(s)
	}

	if !forceText {
		nums := make([]float64, len(cells))
		numeric := true
		for i, s := range cells {
			if !valid[i] {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				numeric = false
				break
			}
			nums[i] = v
		}
		if numeric {
			return NewNumber(name, nums, valid)
		}
	}

	strs := make([]string, len(cells))
	for i, s := range cells {
		if valid[i] {
			strs[i] = strings.TrimSpace(s)
		}
	}
	return NewText(name, strs, valid)
}

// ReadCSVFile opens and parses path.
func ReadCSVFile(path string, text ...string) (*Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open table")
	}
	defer fh.Close()

	f, err := ReadCSV(fh, text...)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return f, nil
}

// WriteCSV writes the frame with a header row and NullMarker for nulls.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Names()); err != nil {
		return errors.Wrap(err, "write header")
	}

	rec := make([]string, len(f.order))
	for i := 0; i < f.rows; i++ {
		for j, n := range f.order {
			s, ok := f.cols[n].Text(i)
			if !ok {
				s = NullMarker
			}
			rec[j] = s
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrapf(err, "write row %d", i)
		}
	}

	cw.Flush()
	return cw.Error()
}

// CreateCSVFile writes the frame to a new file and refuses to replace an
// existing one, so versioned artifacts are never overwritten.
func CreateCSVFile(path string, f *Frame) error {
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrap(err, "create table")
	}

	if err := WriteCSV(fh, f); err != nil {
		fh.Close()
		_ = os.Remove(path)
		return errors.Wrapf(err, "write %s", path)
	}
	return fh.Close()
}
