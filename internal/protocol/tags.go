package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const maxListEntries = 52

// listIndexChar maps a list position to its key suffix: A..Z then a..z.
func listIndexChar(i int) byte {
	if i < 26 {
		return byte('A' + i)
	}

	return byte('a' + i - 26)
}

func listKey(prefix byte, i int) string {
	return string([]byte{prefix, listIndexChar(i)})
}

// TagWriter builds the KEY=VALUE| body of a frame.
type TagWriter struct {
	buf bytes.Buffer
}

func (w *TagWriter) String(key, value string) {
	w.buf.WriteString(key)
	w.buf.WriteByte('=')
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch == '|' || ch == '=' || ch == '\\' {
			w.buf.WriteByte('\\')
		}
		w.buf.WriteByte(ch)
	}
	w.buf.WriteByte('|')
}

func (w *TagWriter) Int(key string, v int) {
	w.String(key, strconv.Itoa(v))
}

func (w *TagWriter) Int64(key string, v int64) {
	w.String(key, strconv.FormatInt(v, 10))
}

func (w *TagWriter) Bool(key string, v bool) {
	if v {
		w.String(key, "1")
		return
	}
	w.String(key, "0")
}

// List writes values under prefix+A, prefix+B, ... preceded by a count.
func (w *TagWriter) List(countKey string, prefix byte, values []string) error {
	if len(values) > maxListEntries {
		return fmt.Errorf("%w: list of %d entries exceeds %d", ErrUnencodable, len(values), maxListEntries)
	}
	w.Int(countKey, len(values))
	for i, v := range values {
		w.String(listKey(prefix, i), v)
	}

	return nil
}

// PairedList interleaves an annotation and a value per row.
func (w *TagWriter) PairedList(countKey string, namePrefix, valuePrefix byte, names, values []string) error {
	if len(names) != len(values) {
		return fmt.Errorf("%w: %d names for %d values", ErrUnencodable, len(names), len(values))
	}
	if len(values) > maxListEntries {
		return fmt.Errorf("%w: list of %d entries exceeds %d", ErrUnencodable, len(values), maxListEntries)
	}
	w.Int(countKey, len(values))
	for i := range values {
		w.String(listKey(namePrefix, i), names[i])
		w.String(listKey(valuePrefix, i), values[i])
	}

	return nil
}

func (w *TagWriter) Bytes() []byte {
	return w.buf.Bytes()
}

// TagValues holds the decoded fields of one frame.
type TagValues map[string]string

// ParseTags splits a frame body into fields, undoing escapes.
func ParseTags(body []byte) (TagValues, error) {
	tags := make(TagValues)
	i := 0
	for i < len(body) {
		eq := bytes.IndexByte(body[i:], '=')
		if eq != 2 {
			end := len(body)
			if eq >= 0 {
				end = i + eq
			}
			return nil, fmt.Errorf("%w: %q at offset %d", ErrMalformedKey, body[i:end], i)
		}
		key := string(body[i : i+2])
		if strings.ContainsAny(key, "|\\") {
			return nil, fmt.Errorf("%w: %q at offset %d", ErrMalformedKey, key, i)
		}
		i += 3

		var sb strings.Builder
		terminated := false
		for i < len(body) {
			ch := body[i]
			i++
			if ch == '\\' && i < len(body) {
				sb.WriteByte(body[i])
				i++
				continue
			}
			if ch == '|' {
				terminated = true
				break
			}
			sb.WriteByte(ch)
		}
		if !terminated {
			return nil, fmt.Errorf("%w: value of %s is not terminated", ErrMalformedFrame, key)
		}
		tags[key] = sb.String()
	}

	return tags, nil
}

func (t TagValues) Has(key string) bool {
	_, ok := t[key]
	return ok
}

func (t TagValues) String(key string) (string, error) {
	v, ok := t[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}

	return v, nil
}

func (t TagValues) StringOr(key, def string) string {
	if v, ok := t[key]; ok {
		return v
	}

	return def
}

func (t TagValues) Int(key string) (int, error) {
	raw, err := t.String(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw)
	}

	return v, nil
}

// IntOr returns def when the key is absent; a present but unparsable value
// is still an error.
func (t TagValues) IntOr(key string, def int) (int, error) {
	if !t.Has(key) {
		return def, nil
	}

	return t.Int(key)
}

func (t TagValues) Int64Or(key string, def int64) (int64, error) {
	raw, ok := t[key]
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw)
	}

	return v, nil
}

func (t TagValues) Bool(key string) (bool, error) {
	raw, err := t.String(key)
	if err != nil {
		return false, err
	}

	return parseWireBool(key, raw)
}

func (t TagValues) BoolOr(key string, def bool) (bool, error) {
	if !t.Has(key) {
		return def, nil
	}

	return t.Bool(key)
}

func parseWireBool(key, raw string) (bool, error) {
	switch strings.TrimSpace(raw) {
	case "1", "true", "TRUE":
		return true, nil
	case "0", "false", "FALSE":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw)
	}
}

// List collects prefix+A, prefix+B, ... until the first absent key. A
// frame carrying countKey yields a non-nil slice even when it is empty.
func (t TagValues) List(countKey string, prefix byte) []string {
	var out []string
	if t.Has(countKey) {
		out = []string{}
	}
	for i := 0; i < maxListEntries; i++ {
		v, ok := t[listKey(prefix, i)]
		if !ok {
			break
		}
		out = append(out, v)
	}

	return out
}

// PairedList reads rows written by TagWriter.PairedList. A row without an
// annotation gets an empty name.
func (t TagValues) PairedList(countKey string, namePrefix, valuePrefix byte) (names, values []string) {
	values = t.List(countKey, valuePrefix)
	if len(values) == 0 {
		return nil, values
	}
	names = make([]string, len(values))
	hasNames := false
	for i := range values {
		if name, ok := t[listKey(namePrefix, i)]; ok {
			names[i] = name
			hasNames = true
		}
	}
	if !hasNames {
		return nil, values
	}

	return names, values
}
