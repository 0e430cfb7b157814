package signing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"unicode/utf16"
)

// Order-preserving JSON re-encoding. The mismatch diagnosis reconstructs the
// byte forms a signer's JSON library may have produced for the same value,
// which requires decoding without losing member order and re-encoding under
// each formatting convention.

// jsonEncodeOptions selects one formatting convention.
type jsonEncodeOptions struct {
	itemSep        string
	kvSep          string
	sortKeys       bool
	escapeNonASCII bool
}

// jsonMember is one object member. Objects decode to []jsonMember so member
// order survives the round trip.
type jsonMember struct {
	key   string
	value any
}

// parseOrderedJSON decodes data into a tree of []jsonMember, []any,
// string, json.Number, bool and nil. Numbers stay in source form and are
// re-emitted verbatim.
func parseOrderedJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	value, err := decodeOrderedValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return value, nil
}

func decodeOrderedValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		members := []jsonMember{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is not a string: %v", keyTok)
			}
			value, err := decodeOrderedValue(dec)
			if err != nil {
				return nil, err
			}
			members = append(members, jsonMember{key: key, value: value})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return members, nil
	case '[':
		items := []any{}
		for dec.More() {
			value, err := decodeOrderedValue(dec)
			if err != nil {
				return nil, err
			}
			items = append(items, value)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}

// encodeOrderedJSON renders a parseOrderedJSON tree under the given
// convention.
func encodeOrderedJSON(value any, opts jsonEncodeOptions) []byte {
	var buf bytes.Buffer
	encodeOrderedValue(&buf, value, opts)
	return buf.Bytes()
}

func encodeOrderedValue(buf *bytes.Buffer, value any, opts jsonEncodeOptions) {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(string(v))
	case string:
		encodeJSONString(buf, v, opts.escapeNonASCII)
	case []jsonMember:
		members := v
		if opts.sortKeys {
			members = append([]jsonMember(nil), v...)
			sort.SliceStable(members, func(i, j int) bool { return members[i].key < members[j].key })
		}
		buf.WriteByte('{')
		for i, m := range members {
			if i > 0 {
				buf.WriteString(opts.itemSep)
			}
			encodeJSONString(buf, m.key, opts.escapeNonASCII)
			buf.WriteString(opts.kvSep)
			encodeOrderedValue(buf, m.value, opts)
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteString(opts.itemSep)
			}
			encodeOrderedValue(buf, item, opts)
		}
		buf.WriteByte(']')
	}
}

// encodeJSONString writes s as a JSON string without the HTML-safe escapes
// Go's encoder applies. In escapeNonASCII mode every rune above 0x7E becomes
// a \u escape, with surrogate pairs for runes beyond the basic plane.
func encodeJSONString(buf *bytes.Buffer, s string, escapeNonASCII bool) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r < 0x20:
				fmt.Fprintf(buf, `\u%04x`, r)
			case !escapeNonASCII || r < 0x7f:
				buf.WriteRune(r)
			case r <= 0xffff:
				fmt.Fprintf(buf, `\u%04x`, r)
			default:
				r1, r2 := utf16.EncodeRune(r)
				fmt.Fprintf(buf, `\u%04x\u%04x`, r1, r2)
			}
		}
	}
	buf.WriteByte('"')
}
