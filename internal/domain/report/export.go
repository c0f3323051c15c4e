package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"

	"github.com/xenking/pos-backoffice/internal/domain/apperr"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates an export format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", apperr.Newf(apperr.Validation, "unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of the encoding.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// FileName returns a download name such as sales-2024-01-01-2024-02-01.csv.gz.
func FileName(res *Result, f Format, compress bool) string {
	name := fmt.Sprintf("%s-%s-%s.%s", res.Kind,
		res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"), f)
	if compress {
		name += ".gz"
	}
	return name
}

// Export generates the report and writes it to w.
func (e *Engine) Export(ctx context.Context, kind Kind, p Params, f Format, compress bool, w io.Writer) error {
	res, err := e.Generate(ctx, kind, p)
	if err != nil {
		return err
	}
	return Write(w, res, f, compress)
}

// Write encodes res as f, optionally gzip-compressed.
func Write(w io.Writer, res *Result, f Format, compress bool) (rerr error) {
	if compress {
		gz := pgzip.NewWriter(w)
		defer func() {
			if err := gz.Close(); err != nil && rerr == nil {
				rerr = errors.Wrap(err, "close gzip")
			}
		}()
		w = gz
	}

	switch f {
	case FormatCSV:
		return writeCSV(w, res.Data)
	case FormatJSON, "":
		return writeJSON(w, res)
	default:
		return apperr.Newf(apperr.Validation, "unsupported export format %q", f)
	}
}

func writeCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)

	cols := t.Columns()
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Name
	}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "write header")
	}
	if err := cw.WriteAll(t.Rows()); err != nil {
		return errors.Wrap(err, "write rows")
	}
	return nil
}

// writeJSON renders the table as an array of objects keyed by column name.
// Numeric cells are written as JSON numbers, empty ones as null.
func writeJSON(w io.Writer, res *Result) error {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	cols := res.Data.Columns()

	e.ObjStart()
	e.FieldStart("type")
	e.Str(string(res.Kind))
	e.FieldStart("period")
	e.Str(string(res.Period))
	e.FieldStart("start")
	e.Str(res.Start.Format(time.RFC3339))
	e.FieldStart("end")
	e.Str(res.End.Format(time.RFC3339))

	e.FieldStart("rows")
	e.ArrStart()
	for _, row := range res.Data.Rows() {
		e.ObjStart()
		for i, c := range cols {
			e.FieldStart(c.Name)
			var v string
			if i < len(row) {
				v = row[i]
			}
			switch {
			case c.Numeric && v == "":
				e.Null()
			case c.Numeric:
				e.RawStr(v)
			default:
				e.Str(v)
			}
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()

	if _, err := w.Write(e.Bytes()); err != nil {
		return errors.Wrap(err, "write json")
	}
	return nil
}
