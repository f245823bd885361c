package element

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Rank orders factories offering the same functionality.
type Rank int

const (
	RankNone      Rank = 0
	RankMarginal  Rank = 64
	RankSecondary Rank = 128
	RankPrimary   Rank = 256
)

// PluginDesc describes a plugin and registers its element factories in Init.
type PluginDesc struct {
	Name        string
	Description string
	Version     string
	License     string
	Source      string
	Package     string
	Origin      string
	ReleaseDate string
	Init        func(p *Plugin) error
}

// Constructor creates one element instance of a factory.
type Constructor func(name string) (*Element, error)

// Factory creates elements of one registered type.
type Factory struct {
	Name   string
	Rank   Rank
	Class  *Class
	Plugin string

	construct Constructor
}

// Create makes a new element instance named name.
func (f *Factory) Create(name string) (*Element, error) {
	e, err := f.construct(name)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s element", f.Name)
	}
	return e, nil
}

// Plugin is a loaded plugin.
type Plugin struct {
	desc     PluginDesc
	registry *Registry
}

func (p *Plugin) Desc() PluginDesc {
	return p.desc
}

// RegisterElement makes an element type available under name.
func (p *Plugin) RegisterElement(name string, rank Rank, class *Class, construct Constructor) error {
	return p.registry.addFactory(&Factory{
		Name:      name,
		Rank:      rank,
		Class:     class,
		Plugin:    p.desc.Name,
		construct: construct,
	})
}

var (
	ErrPluginExists  = errors.New("plugin already registered")
	ErrFactoryExists = errors.New("element factory already registered")
	ErrNoSuchFactory = errors.New("no such element factory")
	ErrInvalidPlugin = errors.New("invalid plugin description")
)

// Registry holds the loaded plugins and their element factories.
type Registry struct {
	mu        sync.RWMutex
	plugins   map[string]*Plugin
	factories map[string]*Factory
}

func NewRegistry() *Registry {
	return &Registry{
		plugins:   make(map[string]*Plugin),
		factories: make(map[string]*Factory),
	}
}

// RegisterPlugin loads a plugin and runs its Init.
func (r *Registry) RegisterPlugin(desc PluginDesc) error {
	if desc.Name == "" || desc.Version == "" || desc.Init == nil {
		return errors.Wrapf(ErrInvalidPlugin, "plugin %q", desc.Name)
	}
	r.mu.Lock()
	if _, ok := r.plugins[desc.Name]; ok {
		r.mu.Unlock()
		return errors.Wrapf(ErrPluginExists, "plugin %s", desc.Name)
	}
	p := &Plugin{desc: desc, registry: r}
	r.plugins[desc.Name] = p
	r.mu.Unlock()

	if err := desc.Init(p); err != nil {
		r.removePlugin(desc.Name)
		return errors.Wrapf(err, "initializing plugin %s", desc.Name)
	}
	return nil
}

func (r *Registry) removePlugin(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plugins, name)
	for k, f := range r.factories {
		if f.Plugin == name {
			delete(r.factories, k)
		}
	}
}

func (r *Registry) addFactory(f *Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[f.Name]; ok {
		return errors.Wrapf(ErrFactoryExists, "factory %s", f.Name)
	}
	r.factories[f.Name] = f
	return nil
}

// Plugin returns the plugin registered as name.
func (r *Registry) Plugin(name string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Factory returns the element factory registered as name.
func (r *Registry) Factory(name string) (*Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Factories lists the registered factories, highest rank first.
func (r *Registry) Factories() []*Factory {
	r.mu.RLock()
	out := make([]*Factory, 0, len(r.factories))
	for _, f := range r.factories {
		out = append(out, f)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Make creates an element from the factory called factory.
func (r *Registry) Make(factory, name string) (*Element, error) {
	f, ok := r.Factory(factory)
	if !ok {
		return nil, errors.Wrapf(ErrNoSuchFactory, "factory %s", factory)
	}
	return f.Create(name)
}
