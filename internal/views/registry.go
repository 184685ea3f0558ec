package views

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/labdash/internal/dataset"
)

// Handler is the pure callback bound to a view's inputs.
type Handler func(ds *dataset.Dataset, sel Selection) (*Result, error)

// Binding ties a set of input ids to the handler that recomputes the view's
// figure when any of them changes.
type Binding struct {
	View    string
	Inputs  []string
	Handler Handler
}

// Key identifies the binding by view and sorted input ids.
func (b Binding) Key() string {
	ids := append([]string(nil), b.Inputs...)
	sort.Strings(ids)
	return b.View + ":" + strings.Join(ids, ",")
}

// Observer is told about every invocation. placeholder is true when the
// guard answered without running the pipeline.
type Observer func(view string, elapsed time.Duration, placeholder bool, err error)

// Registry maps views to their bindings. It is built once and read
// concurrently afterwards.
type Registry struct {
	views    map[string]View
	order    []string
	bindings map[string]Binding
	observe  Observer
}

// NewRegistry registers views in the order given.
func NewRegistry(vs ...View) *Registry {
	r := &Registry{views: map[string]View{}, bindings: map[string]Binding{}}
	for _, v := range vs {
		r.Register(v)
	}
	return r
}

// Default returns a registry with the four dashboard views.
func Default() *Registry {
	return NewRegistry(Series{}, Box{}, Scatter{}, Waterfall{})
}

// Register adds v and binds its inputs to its pipeline. Registering an id
// twice replaces the earlier view.
func (r *Registry) Register(v View) {
	spec := v.Spec()
	if _, ok := r.views[spec.ID]; !ok {
		r.order = append(r.order, spec.ID)
	}
	r.views[spec.ID] = v
	ids := make([]string, len(spec.Inputs))
	for i, in := range spec.Inputs {
		ids[i] = in.ID
	}
	b := Binding{View: spec.ID, Inputs: ids, Handler: pipeline(v)}
	r.bindings[spec.ID] = b
}

// Observe sets the invocation observer.
func (r *Registry) Observe(o Observer) { r.observe = o }

// Specs lists the registered views in registration order.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, len(r.order))
	for i, id := range r.order {
		out[i] = r.views[id].Spec()
	}
	return out
}

// Lookup returns the view with the given id.
func (r *Registry) Lookup(id string) (View, bool) {
	v, ok := r.views[id]
	return v, ok
}

// ByPath returns the view served at a page path.
func (r *Registry) ByPath(path string) (View, bool) {
	for _, id := range r.order {
		if r.views[id].Spec().Path == path {
			return r.views[id], true
		}
	}
	return nil, false
}

// Binding returns the binding of a view.
func (r *Registry) Binding(id string) (Binding, bool) {
	b, ok := r.bindings[id]
	return b, ok
}

// Invoke resolves the selection against the view's defaults and runs its
// handler synchronously.
func (r *Registry) Invoke(id string, ds *dataset.Dataset, sel Selection) (*Result, error) {
	b, ok := r.bindings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, id)
	}
	resolved, err := Resolve(r.views[id].Spec(), sel)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := b.Handler(ds, resolved)
	if r.observe != nil {
		r.observe(id, time.Since(start), err == nil && res.Shaped == nil, err)
	}
	return res, err
}

// pipeline runs Guard, then Shape and Build.
func pipeline(v View) Handler {
	return func(ds *dataset.Dataset, sel Selection) (*Result, error) {
		if fig := v.Guard(sel); fig != nil {
			return &Result{Figure: fig}, nil
		}
		if ds == nil {
			return nil, fmt.Errorf("%s: no dataset loaded", v.Spec().ID)
		}
		shaped, err := v.Shape(ds, sel)
		if err != nil {
			return nil, fmt.Errorf("%s: shape: %w", v.Spec().ID, err)
		}
		fig, err := v.Build(shaped, sel)
		if err != nil {
			return nil, fmt.Errorf("%s: build: %w", v.Spec().ID, err)
		}
		return &Result{Figure: fig, Shaped: shaped}, nil
	}
}
