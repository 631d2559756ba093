// Package parser reads and writes documents as Extended JSON.
package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Record is a single document with its key order preserved.
type Record = bson.D

const maxLine = 16 << 20

// Parser reads documents from a JSON array, concatenated JSON objects or
// JSON Lines.
type Parser struct {
	src     io.ReadCloser
	isJSONL bool

	// Stateful readers
	decoder   *json.Decoder
	scanner   *bufio.Scanner
	bufReader *bufio.Reader

	startArrayChecked bool
	inArray           bool
	line              int
}

// NewParser creates a new parser for source.
// Special cases:
// - Empty string or "-" reads from stdin
// - Strings starting with '{' or '[' are treated as inline JSON
func NewParser(source string) (*Parser, error) {
	var src io.ReadCloser
	var isJSONL bool

	trimmed := strings.TrimSpace(source)
	switch {
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		src = io.NopCloser(strings.NewReader(trimmed))
	case source == "" || source == "-":
		src = io.NopCloser(os.Stdin)
	default:
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		src = f
		isJSONL = strings.HasSuffix(source, ".jsonl")
	}
	return NewReader(src, isJSONL), nil
}

// NewReader reads from r, as JSON Lines when isJSONL is set.
func NewReader(r io.Reader, isJSONL bool) *Parser {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	p := &Parser{src: rc, isJSONL: isJSONL}
	if isJSONL {
		p.scanner = bufio.NewScanner(rc)
		p.scanner.Buffer(make([]byte, 64*1024), maxLine)
	} else {
		p.bufReader = bufio.NewReader(rc)
		p.decoder = json.NewDecoder(p.bufReader)
	}
	return p
}

// Close closes the underlying reader.
func (p *Parser) Close() error {
	return p.src.Close()
}

// IsJSONL returns whether the parser is treating the input as JSON Lines
func (p *Parser) IsJSONL() bool {
	return p.isJSONL
}

// Read returns the next document, or io.EOF when the input is exhausted.
func (p *Parser) Read() (Record, error) {
	if p.isJSONL {
		for p.scanner.Scan() {
			p.line++
			line := bytes.TrimSpace(p.scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			rec, err := Decode(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", p.line, err)
			}
			return rec, nil
		}
		if err := p.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	if !p.startArrayChecked {
		// Peek first non-whitespace byte
		for {
			b, err := p.bufReader.Peek(1)
			if err != nil {
				return nil, err
			}
			c := b[0]
			if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
				p.bufReader.ReadByte()
				continue
			}
			if c == '[' {
				p.inArray = true
				// consumed through the decoder so More() tracks the array
				if _, err := p.decoder.Token(); err != nil {
					return nil, err
				}
			}
			p.startArrayChecked = true
			break
		}
	}

	if p.inArray && !p.decoder.More() {
		t, err := p.decoder.Token()
		if err != nil {
			return nil, err
		}
		if delim, ok := t.(json.Delim); ok && delim == ']' {
			p.inArray = false
			return nil, io.EOF
		}
		return nil, fmt.Errorf("expected array end, got %v", t)
	}

	var raw json.RawMessage
	if err := p.decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode JSON record: %w", err)
	}
	return Decode(raw)
}

// ReadAll reads every remaining document.
func (p *Parser) ReadAll() ([]Record, error) {
	var records []Record
	for {
		rec, err := p.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// ForEachRecord calls fn for each remaining document.
func (p *Parser) ForEachRecord(fn func(Record) error) error {
	for {
		rec, err := p.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// Decode parses one Extended JSON object.
func Decode(data []byte) (Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}
	var rec Record
	if err := bson.UnmarshalExtJSON(data, false, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if rec == nil {
		rec = Record{}
	}
	return rec, nil
}

// ReadText returns the text of a document argument: inline JSON as is, "-"
// for stdin, anything else a file path.
func ReadText(arg string) (string, error) {
	trimmed := strings.TrimSpace(arg)
	switch {
	case trimmed == "" || strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		return trimmed, nil
	case trimmed == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(trimmed)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), nil
	}
}

// Marshal renders v as Extended JSON, relaxed unless canonical is set.
func Marshal(v any, canonical, pretty bool) ([]byte, error) {
	out, err := bson.MarshalExtJSON(v, canonical, false)
	if err != nil {
		return nil, err
	}
	if !pretty {
		return out, nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, out, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON writes records as a JSON array
func WriteJSON(w io.Writer, records []Record, pretty bool) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, rec := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		out, err := bson.MarshalExtJSON(rec, false, false)
		if err != nil {
			return err
		}
		buf.Write(out)
	}
	buf.WriteByte(']')

	out := buf.Bytes()
	if pretty {
		var indented bytes.Buffer
		if err := json.Indent(&indented, out, "", "  "); err != nil {
			return err
		}
		out = indented.Bytes()
	}
	out = append(out, '\n')
	_, err := w.Write(out)
	return err
}

// WriteJSONL writes records as JSON Lines
func WriteJSONL(w io.Writer, records []Record, pretty bool) error {
	for _, rec := range records {
		out, err := Marshal(rec, false, pretty)
		if err != nil {
			return err
		}
		out = append(out, '\n')
		if _, err := w.Write(out); err != nil {
			return err
		}
	}
	return nil
}
