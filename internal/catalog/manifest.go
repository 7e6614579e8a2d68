package catalog

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/gnzdotmx/psforge/internal/mod"
	textunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Manifest holds the fields of a module manifest (.psd1) the build needs
type Manifest struct {
	ModuleVersion   string
	RootModule      string
	RequiredModules []mod.Requirement
}

// ReadManifest reads and parses the manifest at path
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return m, nil
}

// ParseManifest extracts version, root module and required modules from
// the contents of a PowerShell data file.
func ParseManifest(data []byte) (*Manifest, error) {
	table, err := parseDataFile(data)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		ModuleVersion: stringValue(table["moduleversion"]),
		RootModule:    stringValue(table["rootmodule"]),
	}
	if m.RootModule == "" {
		m.RootModule = stringValue(table["moduletoprocess"])
	}

	for _, item := range listValue(table["requiredmodules"]) {
		switch v := item.(type) {
		case string:
			if v != "" {
				m.RequiredModules = append(m.RequiredModules, mod.Requirement{Name: v})
			}
		case map[string]any:
			req := mod.Requirement{
				Name:            stringValue(v["modulename"]),
				RequiredVersion: stringValue(v["requiredversion"]),
				MinimumVersion:  stringValue(v["moduleversion"]),
			}
			if req.Name == "" {
				return nil, fmt.Errorf("required module entry without ModuleName")
			}
			m.RequiredModules = append(m.RequiredModules, req)
		}
	}

	return m, nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// listValue normalises a scalar or list value into a list
func listValue(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokHashStart
	tokArrayStart
	tokHashEnd
	tokArrayEnd
	tokAssign
	tokSemicolon
	tokComma
	tokNewline
	tokString
	tokWord
)

type token struct {
	kind  tokenKind
	value string
	line  int
}

// decode turns manifest bytes into UTF-8. A UTF-8 or UTF-16 byte order mark
// selects the encoding, anything else is read as UTF-8.
func decode(src []byte) ([]byte, error) {
	out, _, err := transform.Bytes(textunicode.BOMOverride(textunicode.UTF8.NewDecoder()), src)
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return out, nil
}

func tokenize(src []byte) ([]token, error) {
	src, err := decode(src)
	if err != nil {
		return nil, err
	}
	runes := []rune(string(src))
	var tokens []token
	line := 1

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r == '\n':
			tokens = append(tokens, token{kind: tokNewline, line: line})
			line++
			i++
		case unicode.IsSpace(r):
			i++
		case r == '<' && i+1 < len(runes) && runes[i+1] == '#':
			j := i + 2
			for j+1 < len(runes) && !(runes[j] == '#' && runes[j+1] == '>') {
				if runes[j] == '\n' {
					line++
				}
				j++
			}
			if j+1 >= len(runes) {
				return nil, fmt.Errorf("line %d: unterminated block comment", line)
			}
			i = j + 2
		case r == '#':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '@' && i+1 < len(runes) && (runes[i+1] == '\'' || runes[i+1] == '"'):
			value, next, lines, err := readHereString(runes, i)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			tokens = append(tokens, token{kind: tokString, value: value, line: line})
			line += lines
			i = next
		case r == '@' && i+1 < len(runes) && runes[i+1] == '{':
			tokens = append(tokens, token{kind: tokHashStart, line: line})
			i += 2
		case r == '@' && i+1 < len(runes) && runes[i+1] == '(':
			tokens = append(tokens, token{kind: tokArrayStart, line: line})
			i += 2
		case r == '(':
			tokens = append(tokens, token{kind: tokArrayStart, line: line})
			i++
		case r == '}':
			tokens = append(tokens, token{kind: tokHashEnd, line: line})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokArrayEnd, line: line})
			i++
		case r == '=':
			tokens = append(tokens, token{kind: tokAssign, line: line})
			i++
		case r == ';':
			tokens = append(tokens, token{kind: tokSemicolon, line: line})
			i++
		case r == ',':
			tokens = append(tokens, token{kind: tokComma, line: line})
			i++
		case r == '\'' || r == '"':
			value, next, lines, err := readString(runes, i)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			tokens = append(tokens, token{kind: tokString, value: value, line: line})
			line += lines
			i = next
		default:
			start := i
			for i < len(runes) && !unicode.IsSpace(runes[i]) && !strings.ContainsRune("=;,(){}'\"#", runes[i]) {
				i++
			}
			if start == i {
				return nil, fmt.Errorf("line %d: unexpected character %q", line, r)
			}
			tokens = append(tokens, token{kind: tokWord, value: string(runes[start:i]), line: line})
		}
	}

	return append(tokens, token{kind: tokEOF, line: line}), nil
}

// readString reads a quoted string starting at runes[start]. Single-quoted
// strings escape quotes by doubling, double-quoted strings also honour the
// backtick escape.
func readString(runes []rune, start int) (string, int, int, error) {
	quote := runes[start]
	var sb strings.Builder
	lines := 0
	for i := start + 1; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			lines++
		}
		if quote == '"' && r == '`' && i+1 < len(runes) {
			i++
			sb.WriteRune(runes[i])
			continue
		}
		if r == quote {
			if i+1 < len(runes) && runes[i+1] == quote {
				sb.WriteRune(quote)
				i++
				continue
			}
			return sb.String(), i + 1, lines, nil
		}
		sb.WriteRune(r)
	}
	return "", 0, 0, fmt.Errorf("unterminated string")
}

// readHereString reads a @'...'@ or @"..."@ block starting at runes[start].
// The opening marker ends its line and the closing marker starts a line.
// Neither line break next to a marker is part of the value.
func readHereString(runes []rune, start int) (string, int, int, error) {
	quote := runes[start+1]
	i := start + 2
	for i < len(runes) && runes[i] != '\n' {
		if !unicode.IsSpace(runes[i]) {
			return "", 0, 0, fmt.Errorf("here-string header must end the line")
		}
		i++
	}
	if i >= len(runes) {
		return "", 0, 0, fmt.Errorf("unterminated here-string")
	}

	bodyStart := i + 1
	lines := 1
	for lineStart := bodyStart; lineStart < len(runes); {
		if lineStart+1 < len(runes) && runes[lineStart] == quote && runes[lineStart+1] == '@' {
			body := ""
			if lineStart > bodyStart {
				body = string(runes[bodyStart : lineStart-1])
			}
			body = strings.TrimSuffix(strings.ReplaceAll(body, "\r\n", "\n"), "\r")
			return body, lineStart + 2, lines, nil
		}
		end := lineStart
		for end < len(runes) && runes[end] != '\n' {
			end++
		}
		if end >= len(runes) {
			break
		}
		lines++
		lineStart = end + 1
	}
	return "", 0, 0, fmt.Errorf("unterminated here-string")
}

type parser struct {
	tokens []token
	pos    int
}

func parseDataFile(src []byte) (map[string]any, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	p.skip(tokNewline)
	if p.peek().kind != tokHashStart {
		return nil, fmt.Errorf("line %d: manifest must start with @{", p.peek().line)
	}
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) skip(kinds ...tokenKind) {
	for {
		k := p.peek().kind
		found := false
		for _, want := range kinds {
			if k == want {
				found = true
				break
			}
		}
		if !found {
			return
		}
		p.next()
	}
}

func (p *parser) parseValue() (any, error) {
	t := p.next()
	switch t.kind {
	case tokHashStart:
		return p.parseHashtable()
	case tokArrayStart:
		return p.parseArray()
	case tokString:
		return t.value, nil
	case tokWord:
		switch strings.ToLower(t.value) {
		case "$true":
			return true, nil
		case "$false":
			return false, nil
		case "$null":
			return nil, nil
		}
		return t.value, nil
	default:
		return nil, fmt.Errorf("line %d: unexpected token", t.line)
	}
}

// parseExpression reads a value optionally followed by a comma list
func (p *parser) parseExpression() (any, error) {
	first, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokComma {
		return first, nil
	}
	list := []any{first}
	for p.peek().kind == tokComma {
		p.next()
		p.skip(tokNewline)
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, nil
}

func (p *parser) parseHashtable() (map[string]any, error) {
	table := make(map[string]any)
	for {
		p.skip(tokNewline, tokSemicolon)
		t := p.next()
		switch t.kind {
		case tokHashEnd:
			return table, nil
		case tokWord, tokString:
			p.skip(tokNewline)
			if eq := p.next(); eq.kind != tokAssign {
				return nil, fmt.Errorf("line %d: expected '=' after %s", eq.line, t.value)
			}
			p.skip(tokNewline)
			v, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			table[strings.ToLower(t.value)] = v
		case tokEOF:
			return nil, fmt.Errorf("line %d: unterminated hashtable", t.line)
		default:
			return nil, fmt.Errorf("line %d: expected key in hashtable", t.line)
		}
	}
}

func (p *parser) parseArray() ([]any, error) {
	list := []any{}
	for {
		p.skip(tokNewline, tokComma, tokSemicolon)
		switch p.peek().kind {
		case tokArrayEnd:
			p.next()
			return list, nil
		case tokEOF:
			return nil, fmt.Errorf("line %d: unterminated array", p.peek().line)
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
}
