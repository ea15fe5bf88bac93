package cpuprofile

import (
	"encoding/json"
	"fmt"
)

// Profile is a .cpuprofile document. Only the members needed for remapping are
// decoded; everything else is written back as it was read.
type Profile struct {
	// Nodes is nil when "nodes" is missing or is not an array
	Nodes []*Node
	// VSCode is the "$vscode" block, nil when missing or not an object
	VSCode *VSCode

	members members
}

// Node is an entry of the profile's call tree.
type Node struct {
	CallFrame *CallFrame

	members members
	opaque  json.RawMessage
}

// CallFrame is a position in generated code. LineNumber and ColumnNumber are 0-indexed.
type CallFrame struct {
	FunctionName string
	URL          string
	LineNumber   int
	ColumnNumber int

	members members
	decoded callFrameFields
}

type callFrameFields struct {
	functionName string
	url          string
	lineNumber   int
	columnNumber int
}

// VSCode is the vendor extension block written by the VS Code profiler.
type VSCode struct {
	// Locations is nil when "locations" is missing or is not an array
	Locations []*VSLocation

	members members
}

// VSLocation pairs a call frame with the source ranges it covers.
type VSLocation struct {
	CallFrame *CallFrame
	Locations []*LocationEntry

	members members
	opaque  json.RawMessage
}

// LocationEntry is one source position of a VSLocation. Positions are 0-indexed.
type LocationEntry struct {
	LineNumber   int
	ColumnNumber int
	Source       *Source

	members members
	decoded locationFields
	opaque  json.RawMessage
}

type locationFields struct {
	lineNumber   int
	columnNumber int
}

// Source names the file a LocationEntry points into.
type Source struct {
	Path string
	Name string

	members members
	decoded sourceFields
}

type sourceFields struct {
	path string
	name string
}

// Field decodes the top level member key into v. It reports false if the member is missing.
func (p *Profile) Field(key string, v interface{}) (bool, error) {
	return p.members.decode(key, v)
}

func (p *Profile) UnmarshalJSON(b []byte) error {
	if !isObject(b) {
		return fmt.Errorf("profile must be a JSON object")
	}
	if err := p.members.UnmarshalJSON(b); err != nil {
		return err
	}

	if raw, ok := p.members.lookup("nodes"); ok && isArray(raw) {
		if err := json.Unmarshal(raw, &p.Nodes); err != nil {
			return fmt.Errorf("nodes: %w", err)
		}
	}

	if raw, ok := p.members.lookup("$vscode"); ok && isObject(raw) {
		p.VSCode = new(VSCode)
		if err := json.Unmarshal(raw, p.VSCode); err != nil {
			return fmt.Errorf("$vscode: %w", err)
		}
	}
	return nil
}

func (p *Profile) MarshalJSON() ([]byte, error) {
	m := p.members.clone()
	if p.Nodes != nil {
		if err := m.put("nodes", p.Nodes); err != nil {
			return nil, err
		}
	}
	if p.VSCode != nil {
		if err := m.put("$vscode", p.VSCode); err != nil {
			return nil, err
		}
	}
	return m.MarshalJSON()
}

// Field decodes the node member key into v. It reports false if the member is missing.
func (n *Node) Field(key string, v interface{}) (bool, error) {
	return n.members.decode(key, v)
}

func (n *Node) UnmarshalJSON(b []byte) error {
	if !isObject(b) {
		n.opaque = append(json.RawMessage(nil), b...)
		return nil
	}
	if err := n.members.UnmarshalJSON(b); err != nil {
		return err
	}
	cf, err := decodeCallFrame(n.members)
	if err != nil {
		return err
	}
	n.CallFrame = cf
	return nil
}

func (n *Node) MarshalJSON() ([]byte, error) {
	if n.opaque != nil {
		return n.opaque, nil
	}
	m := n.members.clone()
	if n.CallFrame != nil {
		if err := m.put("callFrame", n.CallFrame); err != nil {
			return nil, err
		}
	}
	return m.MarshalJSON()
}

// decodeCallFrame returns the "callFrame" member of m, nil if it is missing or not an object.
func decodeCallFrame(m members) (*CallFrame, error) {
	raw, ok := m.lookup("callFrame")
	if !ok || !isObject(raw) {
		return nil, nil
	}
	cf := new(CallFrame)
	if err := json.Unmarshal(raw, cf); err != nil {
		return nil, fmt.Errorf("callFrame: %w", err)
	}
	return cf, nil
}

// HasLineNumber reports whether the call frame carries a lineNumber member.
func (c *CallFrame) HasLineNumber() bool {
	return c.members.has("lineNumber")
}

func (c *CallFrame) UnmarshalJSON(b []byte) error {
	if err := c.members.UnmarshalJSON(b); err != nil {
		return err
	}

	fields := []struct {
		key string
		dst interface{}
	}{
		{"functionName", &c.FunctionName},
		{"url", &c.URL},
		{"lineNumber", &c.LineNumber},
		{"columnNumber", &c.ColumnNumber},
	}
	for _, f := range fields {
		if _, err := c.members.decode(f.key, f.dst); err != nil {
			return err
		}
	}

	c.decoded = callFrameFields{
		functionName: c.FunctionName,
		url:          c.URL,
		lineNumber:   c.LineNumber,
		columnNumber: c.ColumnNumber,
	}
	return nil
}

func (c *CallFrame) MarshalJSON() ([]byte, error) {
	m := c.members.clone()
	if err := putChanged(&m, "functionName", c.FunctionName, c.decoded.functionName); err != nil {
		return nil, err
	}
	if err := putChanged(&m, "url", c.URL, c.decoded.url); err != nil {
		return nil, err
	}
	if err := putChanged(&m, "lineNumber", c.LineNumber, c.decoded.lineNumber); err != nil {
		return nil, err
	}
	if err := putChanged(&m, "columnNumber", c.ColumnNumber, c.decoded.columnNumber); err != nil {
		return nil, err
	}
	return m.MarshalJSON()
}

func (v *VSCode) UnmarshalJSON(b []byte) error {
	if err := v.members.UnmarshalJSON(b); err != nil {
		return err
	}
	if raw, ok := v.members.lookup("locations"); ok && isArray(raw) {
		if err := json.Unmarshal(raw, &v.Locations); err != nil {
			return fmt.Errorf("locations: %w", err)
		}
	}
	return nil
}

func (v *VSCode) MarshalJSON() ([]byte, error) {
	m := v.members.clone()
	if v.Locations != nil {
		if err := m.put("locations", v.Locations); err != nil {
			return nil, err
		}
	}
	return m.MarshalJSON()
}

func (l *VSLocation) UnmarshalJSON(b []byte) error {
	if !isObject(b) {
		l.opaque = append(json.RawMessage(nil), b...)
		return nil
	}
	if err := l.members.UnmarshalJSON(b); err != nil {
		return err
	}

	cf, err := decodeCallFrame(l.members)
	if err != nil {
		return err
	}
	l.CallFrame = cf

	if raw, ok := l.members.lookup("locations"); ok && isArray(raw) {
		if err := json.Unmarshal(raw, &l.Locations); err != nil {
			return fmt.Errorf("locations: %w", err)
		}
	}
	return nil
}

func (l *VSLocation) MarshalJSON() ([]byte, error) {
	if l.opaque != nil {
		return l.opaque, nil
	}
	m := l.members.clone()
	if l.CallFrame != nil {
		if err := m.put("callFrame", l.CallFrame); err != nil {
			return nil, err
		}
	}
	if l.Locations != nil {
		if err := m.put("locations", l.Locations); err != nil {
			return nil, err
		}
	}
	return m.MarshalJSON()
}

// HasLineNumber reports whether the entry carries a lineNumber member.
func (e *LocationEntry) HasLineNumber() bool {
	return e.members.has("lineNumber")
}

func (e *LocationEntry) UnmarshalJSON(b []byte) error {
	if !isObject(b) {
		e.opaque = append(json.RawMessage(nil), b...)
		return nil
	}
	if err := e.members.UnmarshalJSON(b); err != nil {
		return err
	}
	if _, err := e.members.decode("lineNumber", &e.LineNumber); err != nil {
		return err
	}
	if _, err := e.members.decode("columnNumber", &e.ColumnNumber); err != nil {
		return err
	}
	e.decoded = locationFields{lineNumber: e.LineNumber, columnNumber: e.ColumnNumber}

	if raw, ok := e.members.lookup("source"); ok && isObject(raw) {
		e.Source = new(Source)
		if err := json.Unmarshal(raw, e.Source); err != nil {
			return fmt.Errorf("source: %w", err)
		}
	}
	return nil
}

func (e *LocationEntry) MarshalJSON() ([]byte, error) {
	if e.opaque != nil {
		return e.opaque, nil
	}
	m := e.members.clone()
	if err := putChanged(&m, "lineNumber", e.LineNumber, e.decoded.lineNumber); err != nil {
		return nil, err
	}
	if err := putChanged(&m, "columnNumber", e.ColumnNumber, e.decoded.columnNumber); err != nil {
		return nil, err
	}
	if e.Source != nil {
		if err := m.put("source", e.Source); err != nil {
			return nil, err
		}
	}
	return m.MarshalJSON()
}

func (s *Source) UnmarshalJSON(b []byte) error {
	if err := s.members.UnmarshalJSON(b); err != nil {
		return err
	}
	if _, err := s.members.decode("path", &s.Path); err != nil {
		return err
	}
	if _, err := s.members.decode("name", &s.Name); err != nil {
		return err
	}
	s.decoded = sourceFields{path: s.Path, name: s.Name}
	return nil
}

func (s *Source) MarshalJSON() ([]byte, error) {
	m := s.members.clone()
	if err := putChanged(&m, "path", s.Path, s.decoded.path); err != nil {
		return nil, err
	}
	if err := putChanged(&m, "name", s.Name, s.decoded.name); err != nil {
		return nil, err
	}
	return m.MarshalJSON()
}
