package element

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Structure is one media type with its fixed fields, e.g.
// video/x-raw,format=RGB,width=300,height=300.
type Structure struct {
	Name   string
	Fields map[string]interface{}
}

// NewStructure creates a structure with the given media type name.
func NewStructure(name string, fields map[string]interface{}) Structure {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	return Structure{Name: name, Fields: fields}
}

// Int returns an integer field.
func (s Structure) Int(field string) (int, bool) {
	v, ok := s.Fields[field].(int)
	return v, ok
}

// Str returns a string field.
func (s Structure) Str(field string) (string, bool) {
	v, ok := s.Fields[field].(string)
	return v, ok
}

func (s Structure) intersect(other Structure) (Structure, bool) {
	if s.Name != other.Name {
		return Structure{}, false
	}
	out := NewStructure(s.Name, nil)
	for k, v := range s.Fields {
		if ov, ok := other.Fields[k]; ok && !reflect.DeepEqual(ov, v) {
			return Structure{}, false
		}
		out.Fields[k] = v
	}
	for k, v := range other.Fields {
		out.Fields[k] = v
	}
	return out, true
}

func (s Structure) String() string {
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(s.Name)
	for _, k := range keys {
		fmt.Fprintf(&b, ",%s=%v", k, s.Fields[k])
	}
	return b.String()
}

// Caps is the set of media formats a pad can handle. "Any" matches every
// format and is just one value of the set, not a special path.
type Caps struct {
	any        bool
	structures []Structure
}

// NewAnyCaps returns caps accepting every format.
func NewAnyCaps() *Caps {
	return &Caps{any: true}
}

// NewEmptyCaps returns caps accepting nothing.
func NewEmptyCaps() *Caps {
	return &Caps{}
}

// NewCaps returns caps made of the given structures.
func NewCaps(structures ...Structure) *Caps {
	return &Caps{structures: structures}
}

func (c *Caps) IsAny() bool {
	return c != nil && c.any
}

func (c *Caps) IsEmpty() bool {
	return c == nil || (!c.any && len(c.structures) == 0)
}

// Size is the number of structures; zero for any caps.
func (c *Caps) Size() int {
	if c == nil {
		return 0
	}
	return len(c.structures)
}

// StructureAt returns the structure at index i.
func (c *Caps) StructureAt(i int) Structure {
	return c.structures[i]
}

// Intersect returns the formats accepted by both caps.
func (c *Caps) Intersect(other *Caps) *Caps {
	switch {
	case c.IsAny():
		return other.clone()
	case other.IsAny():
		return c.clone()
	}
	out := NewEmptyCaps()
	if c == nil || other == nil {
		return out
	}
	for _, s := range c.structures {
		for _, o := range other.structures {
			if m, ok := s.intersect(o); ok {
				out.structures = append(out.structures, m)
			}
		}
	}
	return out
}

// CanIntersect reports whether the two caps share at least one format.
func (c *Caps) CanIntersect(other *Caps) bool {
	return !c.Intersect(other).IsEmpty()
}

func (c *Caps) clone() *Caps {
	if c == nil {
		return NewEmptyCaps()
	}
	out := &Caps{any: c.any, structures: make([]Structure, len(c.structures))}
	copy(out.structures, c.structures)
	return out
}

// deepCopy clones c down to the structure fields. nil stays nil.
func (c *Caps) deepCopy() *Caps {
	if c == nil {
		return nil
	}
	out := &Caps{any: c.any, structures: make([]Structure, len(c.structures))}
	for i, s := range c.structures {
		out.structures[i] = Structure{Name: s.Name, Fields: copyFields(s.Fields)}
	}
	return out
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (c *Caps) String() string {
	switch {
	case c.IsAny():
		return "ANY"
	case c.IsEmpty():
		return "EMPTY"
	}
	parts := make([]string, len(c.structures))
	for i, s := range c.structures {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}
