// Package fetcher downloads remote data and streams CSV and ZIP inputs.
package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune            // default ','
	HasHeader  bool            // if true, first row is skipped but sent to HeaderCh
	HeaderCh   chan<- []string // optional: receives the header row
	Comment    rune            // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads CSV rows and sends them to a channel. A leading UTF-8
// byte order mark is dropped. Caller must consume the returned row channel;
// errors are sent on the error channel. Both channels are closed when
// processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		br := bufio.NewReader(r)
		if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			_, _ = br.Discard(len(utf8BOM))
		}

		reader := csv.NewReader(br)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // allow variable fields

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			if first && opts.HasHeader {
				first = false
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}
			first = false

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// Header maps lower-cased, trimmed column names to their index.
type Header map[string]int

// NewHeader indexes a header row.
func NewHeader(row []string) Header {
	h := make(Header, len(row))
	for i, name := range row {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := h[key]; !dup {
			h[key] = i
		}
	}
	return h
}

// Has reports whether every named column is present.
func (h Header) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := h[strings.ToLower(n)]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the named columns that are absent.
func (h Header) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if _, ok := h[strings.ToLower(n)]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Get returns the trimmed value of a named column, or "" when the column
// is absent or the row is short.
func (h Header) Get(row []string, name string) string {
	i, ok := h[strings.ToLower(name)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ReadAll drains a header-first CSV into its header and data rows.
func ReadAll(ctx context.Context, r io.Reader) (Header, [][]string, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(ctx, r, CSVOptions{HasHeader: true, HeaderCh: headerCh, LazyQuotes: true})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return nil, nil, err
		}
	}

	select {
	case hdr := <-headerCh:
		return NewHeader(hdr), rows, nil
	default:
		return nil, nil, eris.New("csv: empty input")
	}
}
