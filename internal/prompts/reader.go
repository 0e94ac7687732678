// Package prompts reads delimited prompt files and resolves each data row into
// the parameter set sent to the sound-generation service.
package prompts

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// utf8BOM is the byte-order mark some spreadsheet exports prepend to UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrMissingHeader indicates the input file is empty or has no header line.
var ErrMissingHeader = errors.New("input file is empty or has no header")

// ErrRowParse indicates one input line could not be parsed. The caller can skip
// that line and keep reading; any other error from Next means the byte stream
// itself failed and further reads would fail the same way.
var ErrRowParse = errors.New("failed to parse row")

// Row is one data line of the input file, excluding the header.
type Row struct {
	// Number is the 1-based physical line number in the input file. The
	// header is line 1, so the first data row is usually number 2; blank
	// lines are skipped but still counted. Used in user-facing messages.
	Number int

	// Fields are the delimiter-separated values of the line.
	Fields []string
}

// Reader yields the rows of a delimited prompt file one at a time. The header
// line is consumed at construction and exposed via Header; the sequence of data
// rows is finite and cannot be restarted.
type Reader struct {
	csvReader *csv.Reader
	header    []string
}

// NewReader wraps a byte stream of delimited UTF-8 text. A leading byte-order
// mark is stripped and the first line is parsed as the header. Rows may have
// inconsistent field counts; validation against column indices happens per row
// during resolution.
func NewReader(reader io.Reader, delimiter rune) (*Reader, error) {
	buffered := bufio.NewReader(reader)

	leading, err := buffered.Peek(len(utf8BOM))
	if err == nil && bytes.Equal(leading, utf8BOM) {
		_, discardErr := buffered.Discard(len(utf8BOM))
		if discardErr != nil {
			return nil, fmt.Errorf("failed to discard byte-order mark: %w", discardErr)
		}
	}

	csvReader := csv.NewReader(buffered)
	csvReader.Comma = delimiter
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true

	header, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingHeader
		}

		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	return &Reader{
		csvReader: csvReader,
		header:    header,
	}, nil
}

// Header returns the field names of the first input line.
func (r *Reader) Header() []string {
	return r.header
}

// Next returns the next data row. It returns io.EOF once the input is
// exhausted. A parse error on a single line wraps ErrRowParse and carries the
// row number, so the caller can skip that line and keep reading; an error from
// the underlying byte stream is returned as is and is not recoverable.
func (r *Reader) Next() (Row, error) {
	fields, err := r.csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return Row{Number: parseErr.Line, Fields: nil}, fmt.Errorf(
				"%w %d: %v", ErrRowParse, parseErr.Line, err,
			)
		}

		return Row{}, fmt.Errorf("failed to read input: %w", err)
	}

	line, _ := r.csvReader.FieldPos(0)

	return Row{Number: line, Fields: fields}, nil
}
