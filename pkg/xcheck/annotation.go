package xcheck

import (
	"fmt"
	"strconv"
	"strings"
)

// ItemKind is the syntactic shape of one annotation item.
type ItemKind int

const (
	ItemWord      ItemKind = iota // no
	ItemNameValue                 // tag = "X"
	ItemList                      // check_value(tag = "X")
	ItemLiteral                   // a bare literal, never accepted by ParseItems
)

// LitKind is the kind of a literal appearing in annotation text.
type LitKind int

const (
	LitString    LitKind = iota // "cooked \"escaped\" text"
	LitRawString                // r"raw" or r#"raw"#
	LitInt
	LitFloat
	LitChar
	LitBool
)

func (k LitKind) String() string {
	switch k {
	case LitString:
		return "string"
	case LitRawString:
		return "raw string"
	case LitInt:
		return "integer"
	case LitFloat:
		return "float"
	case LitChar:
		return "char"
	case LitBool:
		return "bool"
	default:
		return fmt.Sprintf("LitKind(%d)", int(k))
	}
}

// Literal is a literal value. Value is the decoded text for cooked strings and
// the source text for every other kind.
type Literal struct {
	Kind  LitKind
	Value string
}

// Item is one parsed annotation item.
type Item struct {
	Kind  ItemKind
	Name  string
	Lit   Literal
	Items []Item
	Pos   int
}

// ParseAnnotation parses annotation text into an ArgMap. Empty text yields an
// empty map. Cooked strings use Go escape syntax and also accept braced
// unicode escapes (\u{41}). Whitespace is ASCII space, tab, CR or LF.
func ParseAnnotation(text string) (ArgMap, error) {
	items, err := ParseItemList(text)
	if err != nil {
		return nil, err
	}
	return ParseItems(items)
}

// ParseItemList parses annotation text into syntactic items without
// interpreting them.
func ParseItemList(text string) ([]Item, error) {
	tokens, err := tokenizeAnnotation(text)
	if err != nil {
		return nil, err
	}
	p := &annotationParser{tokens: tokens}
	items, err := p.parseList(annTokenEOF)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.typ != annTokenEOF {
		return nil, &ConfigSyntaxError{Pos: tok.pos + 1, Msg: fmt.Sprintf("unexpected token %q", tok.value)}
	}
	return items, nil
}

// --------------------------------------------------------------------------
// Tokenizer (unexported)
// --------------------------------------------------------------------------

type annTokenType int

const (
	annTokenEOF annTokenType = iota
	annTokenIdent
	annTokenLit
	annTokenLParen
	annTokenRParen
	annTokenComma
	annTokenEq
)

type annToken struct {
	typ   annTokenType
	value string
	lit   Literal
	pos   int
}

type annotationParser struct {
	tokens []annToken
	index  int
}

func tokenizeAnnotation(raw string) ([]annToken, error) {
	in := raw
	tokens := make([]annToken, 0)

	pos := 0
	for pos < len(in) {
		c := in[pos]
		if isSpace(c) {
			pos++
			continue
		}

		switch {
		case c == '(':
			tokens = append(tokens, annToken{typ: annTokenLParen, value: "(", pos: pos})
			pos++
		case c == ')':
			tokens = append(tokens, annToken{typ: annTokenRParen, value: ")", pos: pos})
			pos++
		case c == ',':
			tokens = append(tokens, annToken{typ: annTokenComma, value: ",", pos: pos})
			pos++
		case c == '=':
			tokens = append(tokens, annToken{typ: annTokenEq, value: "=", pos: pos})
			pos++
		case c == '"':
			end, err := scanQuoted(in, pos, '"')
			if err != nil {
				return nil, err
			}
			text := in[pos:end]
			s, err := unquoteCooked(text)
			if err != nil {
				return nil, &ConfigSyntaxError{Pos: pos + 1, Msg: fmt.Sprintf("invalid string literal %s", text)}
			}
			tokens = append(tokens, annToken{typ: annTokenLit, value: text, lit: Literal{Kind: LitString, Value: s}, pos: pos})
			pos = end
		case c == '\'':
			end, err := scanQuoted(in, pos, '\'')
			if err != nil {
				return nil, err
			}
			text := in[pos:end]
			tokens = append(tokens, annToken{typ: annTokenLit, value: text, lit: Literal{Kind: LitChar, Value: text}, pos: pos})
			pos = end
		case c == 'r' && pos+1 < len(in) && (in[pos+1] == '"' || in[pos+1] == '#'):
			end, err := scanRawString(in, pos)
			if err != nil {
				return nil, err
			}
			text := in[pos:end]
			tokens = append(tokens, annToken{typ: annTokenLit, value: text, lit: Literal{Kind: LitRawString, Value: text}, pos: pos})
			pos = end
		case c == '-' || c == '+' || isDigit(c):
			start := pos
			pos++
			isFloat := false
			for pos < len(in) {
				ch := in[pos]
				if ch == '.' || ch == 'e' || ch == 'E' {
					isFloat = true
				} else if !isDigit(ch) && ch != '_' && !isLetter(ch) {
					break
				}
				pos++
			}
			text := in[start:pos]
			kind := LitInt
			if isFloat && !strings.HasPrefix(text, "0x") {
				kind = LitFloat
			}
			tokens = append(tokens, annToken{typ: annTokenLit, value: text, lit: Literal{Kind: kind, Value: text}, pos: start})
		case isLetter(c):
			start := pos
			for pos < len(in) && (isLetter(in[pos]) || isDigit(in[pos])) {
				pos++
			}
			word := in[start:pos]
			if word == "true" || word == "false" {
				tokens = append(tokens, annToken{typ: annTokenLit, value: word, lit: Literal{Kind: LitBool, Value: word}, pos: start})
				continue
			}
			tokens = append(tokens, annToken{typ: annTokenIdent, value: word, pos: start})
		default:
			return nil, &ConfigSyntaxError{Pos: pos + 1, Msg: fmt.Sprintf("unexpected character %q", string(c))}
		}
	}

	tokens = append(tokens, annToken{typ: annTokenEOF, value: "", pos: len(in)})
	return tokens, nil
}

// scanQuoted returns the offset just past the closing quote of the literal
// starting at start.
func scanQuoted(in string, start int, quote byte) (int, error) {
	pos := start + 1
	for pos < len(in) {
		ch := in[pos]
		if ch == '\\' && pos+1 < len(in) {
			pos += 2
			continue
		}
		if ch == quote {
			return pos + 1, nil
		}
		pos++
	}
	return 0, &ConfigSyntaxError{Pos: start + 1, Msg: "unterminated literal"}
}

func scanRawString(in string, start int) (int, error) {
	pos := start + 1
	hashes := 0
	for pos < len(in) && in[pos] == '#' {
		hashes++
		pos++
	}
	if pos >= len(in) || in[pos] != '"' {
		return 0, &ConfigSyntaxError{Pos: start + 1, Msg: "malformed raw string literal"}
	}
	closing := "\"" + strings.Repeat("#", hashes)
	idx := strings.Index(in[pos+1:], closing)
	if idx < 0 {
		return 0, &ConfigSyntaxError{Pos: start + 1, Msg: "unterminated literal"}
	}
	return pos + 1 + idx + len(closing), nil
}

// unquoteCooked decodes a double-quoted literal. Go escapes apply, plus
// braced unicode escapes such as \u{41} or \u{1F600}.
func unquoteCooked(text string) (string, error) {
	if !strings.Contains(text, `\u{`) {
		return strconv.Unquote(text)
	}
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '\\' || i+1 >= len(text) {
			b.WriteByte(c)
			continue
		}
		if text[i+1] != 'u' || i+2 >= len(text) || text[i+2] != '{' {
			b.WriteByte(c)
			b.WriteByte(text[i+1])
			i++
			continue
		}
		end := strings.IndexByte(text[i+3:], '}')
		if end < 1 || end > 6 {
			return "", strconv.ErrSyntax
		}
		v, err := strconv.ParseUint(text[i+3:i+3+end], 16, 32)
		if err != nil {
			return "", strconv.ErrSyntax
		}
		fmt.Fprintf(&b, `\U%08x`, v)
		i += 3 + end
	}
	return strconv.Unquote(b.String())
}

func isSpace(c byte) bool  { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// --------------------------------------------------------------------------
// Parser (unexported)
// --------------------------------------------------------------------------

func (p *annotationParser) peek() annToken {
	if p.index >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.index]
}

func (p *annotationParser) next() annToken {
	tok := p.peek()
	if p.index < len(p.tokens) {
		p.index++
	}
	return tok
}

// parseList reads comma separated items until the closing token, which is
// left unconsumed. A trailing comma is allowed.
func (p *annotationParser) parseList(closing annTokenType) ([]Item, error) {
	items := make([]Item, 0)
	for {
		tok := p.peek()
		if tok.typ == closing {
			return items, nil
		}
		item, err := p.parseItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)

		tok = p.peek()
		switch tok.typ {
		case annTokenComma:
			p.next()
		case closing:
			return items, nil
		case annTokenEOF:
			return nil, &ConfigSyntaxError{Pos: tok.pos + 1, Msg: "expected ')' before end of annotation"}
		default:
			return nil, &ConfigSyntaxError{Pos: tok.pos + 1, Msg: fmt.Sprintf("expected ',' but found %q", tok.value)}
		}
	}
}

func (p *annotationParser) parseItem() (Item, error) {
	tok := p.next()
	switch tok.typ {
	case annTokenLit:
		return Item{Kind: ItemLiteral, Lit: tok.lit, Pos: tok.pos + 1}, nil
	case annTokenIdent:
	case annTokenEOF:
		return Item{}, &ConfigSyntaxError{Pos: tok.pos + 1, Msg: "unexpected end of annotation"}
	default:
		return Item{}, &ConfigSyntaxError{Pos: tok.pos + 1, Msg: fmt.Sprintf("unexpected token %q", tok.value)}
	}

	item := Item{Kind: ItemWord, Name: tok.value, Pos: tok.pos + 1}
	switch p.peek().typ {
	case annTokenEq:
		p.next()
		val := p.next()
		if val.typ != annTokenLit {
			return Item{}, &ConfigSyntaxError{Pos: val.pos + 1, Msg: fmt.Sprintf("expected literal after %s =", item.Name)}
		}
		item.Kind = ItemNameValue
		item.Lit = val.lit
	case annTokenLParen:
		p.next()
		nested, err := p.parseList(annTokenRParen)
		if err != nil {
			return Item{}, err
		}
		p.next()
		item.Kind = ItemList
		item.Items = nested
	}
	return item, nil
}
