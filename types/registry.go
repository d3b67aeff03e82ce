package types

import "sort"

// Registry holds named lists. A list is created the first time its name is
// used. Registry is not safe for concurrent use.
type Registry struct {
	dict map[string]*List
}

func NewRegistry() *Registry {
	return &Registry{
		dict: make(map[string]*List),
	}
}

// Get returns the list registered with name, creating it when missing.
func (r *Registry) Get(name string) *List {
	l, ok := r.dict[name]
	if !ok {
		l = NewList()
		r.dict[name] = l
	}

	return l
}

func (r *Registry) Lookup(name string) (l *List, ok bool) {
	l, ok = r.dict[name]
	return
}

// Delete clears and drops the list registered with name.
func (r *Registry) Delete(name string) (didDelete bool) {
	l, ok := r.dict[name]
	if ok {
		l.Clear()
		delete(r.dict, name)
	}

	return ok
}

// Names returns the registered list names in sorted order.
func (r *Registry) Names() (names []string) {
	names = make([]string, 0, len(r.dict))
	for name := range r.dict {
		names = append(names, name)
	}

	sort.Strings(names)
	return
}
