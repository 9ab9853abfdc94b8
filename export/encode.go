package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xuri/excelize/v2"
)

var (
	ErrUnknownResource = errors.New("unknown export resource")
	ErrUnknownFormat   = errors.New("unknown export format")
)

type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
	JSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return CSV, nil
	case CSV, XLSX, JSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func (f Format) ContentType() string {
	switch f {
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case JSON:
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

func (f Format) Filename(name string) string {
	return name + "." + string(f)
}

func Encode(w io.Writer, t Table, f Format) error {
	switch f {
	case CSV:
		return encodeCSV(w, t)
	case XLSX:
		return encodeXLSX(w, t)
	case JSON:
		return encodeJSON(w, t)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

func encodeCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

func encodeXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(t.Name)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	write := func(rowNum int, cells []string) error {
		ref, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		values := make([]any, len(cells))
		for i, c := range cells {
			values[i] = c
		}
		return f.SetSheetRow(sheet, ref, &values)
	}

	if err := write(1, t.Headers); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if err := write(i+2, row); err != nil {
			return err
		}
	}
	return f.Write(w)
}

// sheetName keeps within the 31 character limit Excel puts on sheet names.
func sheetName(name string) string {
	if name == "" {
		return "export"
	}
	if len(name) > 31 {
		return name[:31]
	}
	return name
}

// encodeJSON writes an array of objects keyed by header, keeping column order.
func encodeJSON(w io.Writer, t Table) error {
	keys := make([][]byte, len(t.Headers))
	for i, h := range t.Headers {
		k, err := json.Marshal(h)
		if err != nil {
			return err
		}
		keys[i] = k
	}

	buf := &bytes.Buffer{}
	buf.WriteByte('[')
	for r, row := range t.Rows {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			v, err := json.Marshal(cell)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')

	_, err := buf.WriteTo(w)
	return err
}
