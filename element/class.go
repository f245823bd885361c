package element

import (
	"sync"
)

// Metadata is what an element class reports about itself.
type Metadata struct {
	LongName       string
	Classification string
	Description    string
	Author         string
}

// Class is the per-type data shared by all instances of an element type:
// metadata, pad templates and the debug category used for logging.
type Class struct {
	TypeName      string
	DebugCategory string

	metadata  Metadata
	templates []*PadTemplate
}

func (c *Class) SetMetadata(longName, classification, description, author string) {
	c.metadata = Metadata{
		LongName:       longName,
		Classification: classification,
		Description:    description,
		Author:         author,
	}
}

func (c *Class) Metadata() Metadata {
	return c.metadata
}

// AddPadTemplate registers a template, replacing one with the same name.
func (c *Class) AddPadTemplate(templ *PadTemplate) {
	for i, t := range c.templates {
		if t.Name == templ.Name {
			c.templates[i] = templ
			return
		}
	}
	c.templates = append(c.templates, templ)
}

// PadTemplate returns the template named name, or nil.
func (c *Class) PadTemplate(name string) *PadTemplate {
	for _, t := range c.templates {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (c *Class) PadTemplates() []*PadTemplate {
	return append([]*PadTemplate(nil), c.templates...)
}

var (
	classesMu sync.Mutex
	classes   = map[string]*Class{}
)

// RegisterClass returns the class for typeName, running classInit the first
// time the type is seen in this process only.
func RegisterClass(typeName string, classInit func(*Class)) *Class {
	classesMu.Lock()
	defer classesMu.Unlock()
	if c, ok := classes[typeName]; ok {
		return c
	}
	c := &Class{TypeName: typeName, DebugCategory: typeName}
	if classInit != nil {
		classInit(c)
	}
	classes[typeName] = c
	return c
}
