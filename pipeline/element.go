package pipeline

import (
	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"
	"github.com/pkg/errors"
)

// Element struct wraps a gst element
type Element struct {
	Factory    string
	Name       string
	Properties map[string]interface{}

	el *gst.Element
}

func (e *Element) Build() error {
	element, err := gst.NewElementWithName(e.Factory, e.Name)
	if err != nil {
		return errors.Wrapf(err, "creating %s element", e.Factory)
	}
	for k, v := range e.Properties {
		t, err := element.GetPropertyType(k)
		if err != nil {
			return errors.Wrapf(err, "unable to get %s on %s", k, e.Factory)
		}
		switch {
		case t.IsA(glib.TYPE_ENUM):
			value, err := glib.ValueInit(t)
			if err != nil {
				return err
			}
			value.SetEnum(v.(int))
			if err = element.SetPropertyValue(k, value); err != nil {
				return errors.Wrapf(err, "setting %s on %s", k, e.Factory)
			}
		default:
			if err = element.Set(k, v); err != nil {
				return errors.Wrapf(err, "setting %s on %s", k, e.Factory)
			}
		}
	}
	e.el = element
	return nil
}

func (e *Element) Link(other *Element) error {
	return e.el.Link(other.el)
}

func (e *Element) LinkFiltered(other *Element, caps *gst.Caps) error {
	return e.el.LinkFiltered(other.el, caps)
}

// LinkWithCaps links left to right, restricted to filter when set.
type LinkWithCaps struct {
	left   *Element
	right  *Element
	filter *gst.Caps
}

func (l LinkWithCaps) Link() error {
	if l.filter == nil {
		return l.left.Link(l.right)
	}
	return l.left.LinkFiltered(l.right, l.filter)
}

func NewURIDecodeElement(name string, uri string) *Element {
	return &Element{
		Factory: "uridecodebin",
		Name:    name,
		Properties: map[string]interface{}{
			"uri": uri,
		},
	}
}

// NewTestSrcElement produces a test pattern, numBuffers frames long when
// positive.
func NewTestSrcElement(name string, numBuffers int) *Element {
	element := &Element{
		Factory:    "videotestsrc",
		Name:       name,
		Properties: map[string]interface{}{},
	}
	if numBuffers > 0 {
		element.Properties["num-buffers"] = numBuffers
	}
	return element
}

func NewConvertElement(name string) *Element {
	return &Element{
		Factory: "videoconvert",
		Name:    name,
	}
}

func NewScaleElement(name string) *Element {
	return &Element{
		Factory: "videoscale",
		Name:    name,
	}
}
