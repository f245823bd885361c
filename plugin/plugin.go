// Package plugin registers the ssdtf element factories.
package plugin

import (
	"time"

	"github.com/pkg/errors"

	"github.com/will7200/ssdtf/detect"
	"github.com/will7200/ssdtf/element"
)

const (
	Name        = "ssdtf"
	Description = "Single Shot Multi-box detector in TensorFlow"
	Version     = "0.1"
	License     = "MIT"
	Origin      = "https://github.com/mstallmo/gst-ssd"
	ReleaseDate = "2019-01-19"

	// RelayFactory relays buffers untouched.
	RelayFactory = "ssdtf"
	// DetectorFactory runs the SSD detector on every buffer.
	DetectorFactory = "ssmbd"
)

// Options are shared by every element the plugin creates.
type Options struct {
	// Bus is handed to every element; each gets its own when nil.
	Bus      *element.Bus
	Observer element.Observer
	// StageTimeout bounds model loading on Null->Ready.
	StageTimeout time.Duration
	// Detector configures the stage of DetectorFactory elements. Every
	// element gets its own detector built from these params.
	Detector detect.Params
}

// RelayClass is the class of RelayFactory elements.
func RelayClass() *element.Class {
	return element.RegisterClass("RsSsdTf", func(c *element.Class) {
		c.DebugCategory = "rsssdtf"
		c.SetMetadata("SsdTf", "Generic", "Does nothing with the data", "Sebastian Dröge <sebastian@centricular.com>")
		addAnyTemplates(c)
	})
}

// DetectorClass is the class of DetectorFactory elements.
func DetectorClass() *element.Class {
	return element.RegisterClass("SsDtf", func(c *element.Class) {
		c.DebugCategory = "ssmbd"
		c.SetMetadata("SingleShotMultiBox", "Generic", "Detects objects with a single shot multi-box model", "Mason Stallmo <masonstallmo@gmail.com>")
		addAnyTemplates(c)
	})
}

func addAnyTemplates(c *element.Class) {
	c.AddPadTemplate(element.NewPadTemplate(element.SrcTemplateName, element.PadDirectionSrc, element.PadPresenceAlways, element.NewAnyCaps()))
	c.AddPadTemplate(element.NewPadTemplate(element.SinkTemplateName, element.PadDirectionSink, element.PadPresenceAlways, element.NewAnyCaps()))
}

// Desc describes the plugin; Init registers both factories with opts.
func Desc(opts Options) element.PluginDesc {
	return element.PluginDesc{
		Name:        Name,
		Description: Description,
		Version:     Version,
		License:     License,
		Source:      "ssdtf",
		Package:     "ssdtf",
		Origin:      Origin,
		ReleaseDate: ReleaseDate,
		Init: func(p *element.Plugin) error {
			if err := p.RegisterElement(RelayFactory, element.RankNone, RelayClass(), opts.newRelay); err != nil {
				return err
			}
			return p.RegisterElement(DetectorFactory, element.RankNone, DetectorClass(), opts.newDetector)
		},
	}
}

// Register loads the plugin into r.
func Register(r *element.Registry, opts Options) error {
	return r.RegisterPlugin(Desc(opts))
}

// ForPackets returns options for elements fed RTP packets. Packets have
// no fixed frame size, so the detector does not check one.
func (o Options) ForPackets() Options {
	o.Detector.Width, o.Detector.Height = 0, 0
	return o
}

func (o Options) params(name string) element.Params {
	return element.Params{
		Name:         name,
		Bus:          o.Bus,
		Observer:     o.Observer,
		StageTimeout: o.StageTimeout,
	}
}

func (o Options) newRelay(name string) (*element.Element, error) {
	return element.New(RelayClass(), o.params(name))
}

func (o Options) newDetector(name string) (*element.Element, error) {
	d, err := detect.New(o.Detector)
	if err != nil {
		return nil, errors.Wrapf(err, "%s stage", DetectorFactory)
	}
	params := o.params(name)
	params.Stage = d
	return element.New(DetectorClass(), params)
}
