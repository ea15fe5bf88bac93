package cpuprofile

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// member is one key/value pair of a JSON object.
type member struct {
	key   string
	value json.RawMessage
}

// members is a JSON object that remembers member order and keeps values it
// does not interpret as raw bytes, so a decode/encode cycle does not reorder
// or drop anything.
type members []member

func (m *members) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	out := members{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("member %q: %w", key, err)
		}
		// A repeated key keeps its first position and its last value.
		out.set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*m = out
	return nil
}

func (m members) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, mb := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(mb.key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(mb.value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m members) lookup(key string) (json.RawMessage, bool) {
	for _, mb := range m {
		if mb.key == key {
			return mb.value, true
		}
	}
	return nil, false
}

func (m members) has(key string) bool {
	_, ok := m.lookup(key)
	return ok
}

// decode unmarshals the member named key into v. It reports false if the member is missing.
func (m members) decode(key string, v interface{}) (bool, error) {
	raw, ok := m.lookup(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("member %q: %w", key, err)
	}
	return true, nil
}

// set replaces the value of key in place, or appends it.
func (m *members) set(key string, value json.RawMessage) {
	for i := range *m {
		if (*m)[i].key == key {
			(*m)[i].value = value
			return
		}
	}
	*m = append(*m, member{key: key, value: value})
}

// put encodes v and stores it under key.
func (m *members) put(key string, v interface{}) error {
	raw, err := encode(v)
	if err != nil {
		return fmt.Errorf("member %q: %w", key, err)
	}
	m.set(key, raw)
	return nil
}

// putChanged stores v under key only if it differs from the decoded value.
func putChanged[T comparable](m *members, key string, v, decoded T) error {
	if v == decoded {
		return nil
	}
	return m.put(key, v)
}

func (m members) clone() members {
	return append(members(nil), m...)
}

// encode marshals v without escaping HTML characters, matching JSON.stringify.
func encode(v interface{}) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// kind returns the first significant byte of a raw JSON value.
func kind(raw json.RawMessage) byte {
	raw = bytes.TrimLeft(raw, " \t\r\n")
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}

func isObject(raw json.RawMessage) bool { return kind(raw) == '{' }
func isArray(raw json.RawMessage) bool  { return kind(raw) == '[' }
