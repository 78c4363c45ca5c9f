package pdf

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// objects.go is the minimal object-level reader the image extractor needs:
// a linear scan for "N G obj" definitions, a value parser for dictionaries,
// arrays, names, numbers and references, and expansion of compressed
// object streams so page-tree nodes of cross-reference-stream files are
// visible. It deliberately ignores xref tables; the scan finds every
// object the extractor cares about without them.

type name string

type ref struct {
	num int
	gen int
}

type dict map[name]any

type array []any

type object struct {
	value  any
	stream []byte
}

type document struct {
	objects map[int]*object
}

var objHeader = regexp.MustCompile(`(\d+)\s+(\d+)\s+obj\b`)

// parseDocument scans data for indirect object definitions. Later
// definitions of the same object number win, which is how incremental
// updates behave. Regions covered by stream payloads are skipped so
// binary data can not fake an object header.
func parseDocument(data []byte) (*document, error) {
	doc := &document{objects: make(map[int]*object)}
	skipUntil := 0
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		if m[0] < skipUntil {
			continue
		}
		num, err := strconv.Atoi(string(data[m[2]:m[3]]))
		if err != nil {
			continue
		}
		l := &lexer{data: data, pos: m[1]}
		value, err := l.parseValue()
		if err != nil {
			continue
		}
		obj := &object{value: value}
		if d, ok := value.(dict); ok {
			if stream, end, found := readStream(data, l.pos, d); found {
				obj.stream = stream
				skipUntil = end
			}
		}
		doc.objects[num] = obj
	}
	if len(doc.objects) == 0 {
		return nil, errors.New("no objects found")
	}
	doc.expandObjectStreams()
	return doc, nil
}

// readStream returns the raw bytes of a stream that follows a dictionary.
// The inline /Length is used when it is consistent with the surrounding
// keywords; otherwise the endstream keyword is located by scanning, which
// also covers files whose /Length is an indirect reference.
func readStream(data []byte, pos int, d dict) (raw []byte, end int, found bool) {
	l := &lexer{data: data, pos: pos}
	l.skipSpace()
	if !l.hasPrefix("stream") {
		return nil, pos, false
	}
	p := l.pos + len("stream")
	if p < len(data) && data[p] == '\r' {
		p++
	}
	if p < len(data) && data[p] == '\n' {
		p++
	}

	if n, ok := intValue(d["Length"]); ok && n >= 0 && p+n <= len(data) {
		tail := data[p+n:]
		for len(tail) > 0 && (tail[0] == '\r' || tail[0] == '\n') {
			tail = tail[1:]
		}
		if bytes.HasPrefix(tail, []byte("endstream")) {
			return data[p : p+n], p + n, true
		}
	}

	idx := bytes.Index(data[p:], []byte("endstream"))
	if idx < 0 {
		return nil, pos, false
	}
	raw = data[p : p+idx]
	if len(raw) > 0 && raw[len(raw)-1] == '\n' {
		raw = raw[:len(raw)-1]
	}
	if len(raw) > 0 && raw[len(raw)-1] == '\r' {
		raw = raw[:len(raw)-1]
	}
	return raw, p + idx, true
}

// expandObjectStreams parses the objects packed inside /ObjStm streams.
// Embedded objects never carry streams of their own, and an embedded
// definition never overrides a top-level one.
func (doc *document) expandObjectStreams() {
	for _, n := range doc.sortedNums() {
		obj := doc.objects[n]
		d, ok := obj.value.(dict)
		if !ok || d["Type"] != name("ObjStm") || obj.stream == nil {
			continue
		}
		content, err := decodeStream(doc, d, obj.stream)
		if err != nil {
			continue
		}
		count, _ := doc.resolveInt(d["N"])
		first, _ := doc.resolveInt(d["First"])
		if count <= 0 || first <= 0 || first > len(content) {
			continue
		}

		type pair struct{ num, off int }
		pairs := make([]pair, 0, count)
		hl := &lexer{data: content[:first]}
		for i := 0; i < count; i++ {
			numV, numInt, err1 := hl.parseNumber()
			offV, offInt, err2 := hl.parseNumber()
			if err1 != nil || err2 != nil || !numInt || !offInt {
				break
			}
			pairs = append(pairs, pair{int(numV.(int64)), int(offV.(int64))})
			hl.skipSpace()
		}
		for _, p := range pairs {
			if _, exists := doc.objects[p.num]; exists {
				continue
			}
			if first+p.off >= len(content) {
				continue
			}
			el := &lexer{data: content, pos: first + p.off}
			if v, err := el.parseValue(); err == nil {
				doc.objects[p.num] = &object{value: v}
			}
		}
	}
}

func (doc *document) sortedNums() []int {
	nums := make([]int, 0, len(doc.objects))
	for n := range doc.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// resolve follows reference chains to a direct value.
func (doc *document) resolve(v any) any {
	for i := 0; i < 32; i++ {
		r, ok := v.(ref)
		if !ok {
			return v
		}
		obj, ok := doc.objects[r.num]
		if !ok {
			return nil
		}
		v = obj.value
	}
	return nil
}

func (doc *document) resolveDict(v any) dict {
	d, _ := doc.resolve(v).(dict)
	return d
}

func (doc *document) resolveInt(v any) (int, bool) {
	return intValue(doc.resolve(v))
}

// object returns the full object behind v when v is a reference, wrapping
// direct values so callers get a uniform shape.
func (doc *document) object(v any) *object {
	if r, ok := v.(ref); ok {
		return doc.objects[r.num]
	}
	return &object{value: v}
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// decodeStream decodes a non-image stream: Flate plus an optional PNG
// predictor. Only object streams go through here; page images keep their
// raw bytes and are decoded per filter by the image writer.
func decodeStream(doc *document, d dict, raw []byte) ([]byte, error) {
	filter := doc.resolve(d["Filter"])
	if a, ok := filter.(array); ok && len(a) == 1 {
		filter = doc.resolve(a[0])
	}
	switch filter {
	case nil:
		return raw, nil
	case name("FlateDecode"), name("Fl"):
	default:
		return nil, fmt.Errorf("unsupported stream filter %v", filter)
	}

	out, err := inflate(raw)
	if err != nil {
		return nil, err
	}
	parms := doc.resolveDict(d["DecodeParms"])
	if parms == nil {
		return out, nil
	}
	predictor, ok := doc.resolveInt(parms["Predictor"])
	if !ok || predictor <= 1 {
		return out, nil
	}
	if predictor < 10 {
		return nil, fmt.Errorf("unsupported predictor %d", predictor)
	}
	colors, bpc, columns := 1, 8, 1
	if v, ok := doc.resolveInt(parms["Colors"]); ok {
		colors = v
	}
	if v, ok := doc.resolveInt(parms["BitsPerComponent"]); ok {
		bpc = v
	}
	if v, ok := doc.resolveInt(parms["Columns"]); ok {
		columns = v
	}
	return pngDefilter(out, colors, bpc, columns)
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	return out, nil
}

// lexer tokenizes PDF object syntax from a fixed position.
type lexer struct {
	data []byte
	pos  int
}

func isWhitespace(b byte) bool {
	switch b {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if isWhitespace(b) {
			l.pos++
			continue
		}
		if b == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) hasPrefix(s string) bool {
	return bytes.HasPrefix(l.data[l.pos:], []byte(s))
}

func (l *lexer) parseValue() (any, error) {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return nil, io.ErrUnexpectedEOF
	}
	switch b := l.data[l.pos]; {
	case b == '/':
		return l.parseName(), nil
	case l.hasPrefix("<<"):
		return l.parseDict()
	case b == '<':
		return l.parseHexString()
	case b == '(':
		return l.parseLiteralString()
	case b == '[':
		return l.parseArray()
	case b == '+' || b == '-' || b == '.' || (b >= '0' && b <= '9'):
		v, _, err := l.parseNumberOrRef()
		return v, err
	case b == ']' || b == '>' || b == ')' || b == '{' || b == '}':
		return nil, fmt.Errorf("unexpected %q at offset %d", b, l.pos)
	default:
		return l.parseKeyword()
	}
}

func (l *lexer) parseName() name {
	l.pos++ // consume '/'
	var sb strings.Builder
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if isWhitespace(b) || isDelimiter(b) {
			break
		}
		if b == '#' && l.pos+2 < len(l.data) {
			if v, err := strconv.ParseUint(string(l.data[l.pos+1:l.pos+3]), 16, 8); err == nil {
				sb.WriteByte(byte(v))
				l.pos += 3
				continue
			}
		}
		sb.WriteByte(b)
		l.pos++
	}
	return name(sb.String())
}

func (l *lexer) parseDict() (dict, error) {
	l.pos += 2 // <<
	d := dict{}
	for {
		l.skipSpace()
		if l.hasPrefix(">>") {
			l.pos += 2
			return d, nil
		}
		if l.pos >= len(l.data) {
			return nil, io.ErrUnexpectedEOF
		}
		if l.data[l.pos] != '/' {
			return nil, fmt.Errorf("dictionary key is not a name at offset %d", l.pos)
		}
		key := l.parseName()
		v, err := l.parseValue()
		if err != nil {
			return nil, err
		}
		d[key] = v
	}
}

func (l *lexer) parseArray() (array, error) {
	l.pos++ // [
	var a array
	for {
		l.skipSpace()
		if l.pos >= len(l.data) {
			return nil, io.ErrUnexpectedEOF
		}
		if l.data[l.pos] == ']' {
			l.pos++
			return a, nil
		}
		v, err := l.parseValue()
		if err != nil {
			return nil, err
		}
		a = append(a, v)
	}
}

// parseNumberOrRef parses a number, then looks ahead for the "G R" tail
// that turns two integers into an indirect reference.
func (l *lexer) parseNumberOrRef() (any, bool, error) {
	first, firstInt, err := l.parseNumber()
	if err != nil {
		return nil, false, err
	}
	if !firstInt {
		return first, false, nil
	}
	save := l.pos
	l.skipSpace()
	second, secondInt, err := l.parseNumber()
	if err == nil && secondInt {
		l.skipSpace()
		if l.pos < len(l.data) && l.data[l.pos] == 'R' &&
			(l.pos+1 >= len(l.data) || isWhitespace(l.data[l.pos+1]) || isDelimiter(l.data[l.pos+1])) {
			l.pos++
			return ref{num: int(first.(int64)), gen: int(second.(int64))}, true, nil
		}
	}
	l.pos = save
	return first, true, nil
}

func (l *lexer) parseNumber() (any, bool, error) {
	l.skipSpace()
	start := l.pos
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if b == '+' || b == '-' || b == '.' || (b >= '0' && b <= '9') {
			l.pos++
			continue
		}
		break
	}
	tok := string(l.data[start:l.pos])
	if tok == "" {
		return nil, false, fmt.Errorf("expected number at offset %d", start)
	}
	if !strings.ContainsAny(tok, ".") {
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return n, true, nil
		}
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return nil, false, fmt.Errorf("bad number %q at offset %d", tok, start)
	}
	return f, false, nil
}

func (l *lexer) parseHexString() (string, error) {
	l.pos++ // <
	start := l.pos
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		l.pos++
	}
	if l.pos >= len(l.data) {
		return "", io.ErrUnexpectedEOF
	}
	s := string(l.data[start:l.pos])
	l.pos++ // >
	return s, nil
}

func (l *lexer) parseLiteralString() (string, error) {
	l.pos++ // (
	var sb strings.Builder
	depth := 1
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		switch b {
		case '\\':
			l.pos++
			if l.pos < len(l.data) {
				sb.WriteByte(l.data[l.pos])
				l.pos++
			}
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				l.pos++
				return sb.String(), nil
			}
		}
		sb.WriteByte(b)
		l.pos++
	}
	return "", io.ErrUnexpectedEOF
}

func (l *lexer) parseKeyword() (any, error) {
	start := l.pos
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if isWhitespace(b) || isDelimiter(b) {
			break
		}
		l.pos++
	}
	switch kw := string(l.data[start:l.pos]); kw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected keyword %q at offset %d", kw, start)
	}
}
