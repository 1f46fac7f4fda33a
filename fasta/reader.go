package fasta

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Record is a single FASTA entry.
type Record struct {
	ID          string
	Description string
	Sequence    string
}

// Reader reads records one at a time.
type Reader struct {
	reader  *bufio.Reader
	line    int
	pending string // header read ahead for the next record
	eof     bool
}

// Next returns the next record, or io.EOF when input is exhausted.
func (r *Reader) Next() (*Record, error) {
	header, headerLine, err := r.header()
	if err != nil {
		return nil, err
	}
	id, description := splitHeader(header)
	if id == "" {
		return nil, &ParseError{Line: headerLine, Reason: "empty sequence id"}
	}
	sequence := strings.Builder{}
	for {
		line, err := r.readLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(line, ">") {
			r.pending = line
			break
		}
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		for _, c := range line {
			if c == ' ' || c == '\t' {
				continue
			}
			if !validResidue(c) {
				return nil, &ParseError{Line: r.line, Reason: "invalid residue " + string(c) + " in " + id}
			}
			sequence.WriteRune(c)
		}
	}
	if sequence.Len() == 0 {
		return nil, &ParseError{Line: headerLine, Reason: "empty sequence for " + id}
	}
	return &Record{ID: id, Description: description, Sequence: sequence.String()}, nil
}

func (r *Reader) header() (string, int, error) {
	if r.pending != "" {
		header := r.pending
		r.pending = ""
		return header, r.line, nil
	}
	for {
		line, err := r.readLine()
		if err != nil {
			return "", 0, err
		}
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if !strings.HasPrefix(line, ">") {
			return "", 0, &ParseError{Line: r.line, Reason: "expected header starting with '>'"}
		}
		return line, r.line, nil
	}
}

func (r *Reader) readLine() (string, error) {
	if r.eof {
		return "", io.EOF
	}
	line, err := r.reader.ReadString('\n')
	if errors.Is(err, io.EOF) {
		r.eof = true
		if line == "" {
			return "", io.EOF
		}
	} else if err != nil {
		return "", err
	}
	r.line++
	if r.line == 1 {
		line = strings.TrimPrefix(line, "\ufeff")
	}
	return strings.TrimRight(line, "\r\n \t"), nil
}

func splitHeader(header string) (string, string) {
	header = strings.TrimSpace(strings.TrimPrefix(header, ">"))
	if i := strings.IndexAny(header, " \t"); i != -1 {
		return header[:i], strings.TrimSpace(header[i+1:])
	}
	return header, ""
}

// validResidue accepts IUPAC nucleotide and amino-acid letters plus gap and stop symbols.
func validResidue(c rune) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		return true
	case c == '-', c == '*', c == '.':
		return true
	}
	return false
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Parse reads every record from r in file order. Any malformed record, a
// duplicate id, or an input without records fails the whole parse.
func Parse(r io.Reader) ([]*Record, error) {
	reader := NewReader(r)
	var records []*Record
	seen := map[string]bool{}
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if seen[record.ID] {
			return nil, &ParseError{Line: reader.line, Reason: "duplicate sequence id " + record.ID}
		}
		seen[record.ID] = true
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, &ParseError{Line: reader.line, Reason: "no records"}
	}
	return records, nil
}
