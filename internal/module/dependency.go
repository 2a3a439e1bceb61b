package module

import (
	"sort"
	"strings"
)

// DependencyKind classifies an unresolved reference
type DependencyKind string

const (
	DepEntry         DependencyKind = "entry"
	DepESMImport     DependencyKind = "esm-import"
	DepESMReexport   DependencyKind = "esm-reexport"
	DepRequire       DependencyKind = "cjs-require"
	DepDynamicImport DependencyKind = "dynamic-import"
	DepContext       DependencyKind = "require-context"
	DepSelfReference DependencyKind = "self-reference"
)

// Dependency is an unresolved reference. The module that declared it (its parent) is
// recorded by the module graph, not by the dependency itself.
type Dependency interface {
	Kind() DependencyKind
	Request() string
	// ResolveOptions returns the explicit resolve configuration, or nil
	ResolveOptions() *ResolveOptions
}

// Contextual is implemented by dependencies that carry their own resolve directory.
// Entries use it since they have no origin module.
type Contextual interface {
	ResolveContext() string
}

// ResourceKey identifies dependencies that factorize to the same result when issued by
// the same origin.
func ResourceKey(d Dependency) string {
	var b strings.Builder
	b.WriteString(string(d.Kind()))
	b.WriteByte('|')
	b.WriteString(d.Request())
	if c, ok := d.(Contextual); ok {
		b.WriteByte('|')
		b.WriteString(c.ResolveContext())
	}
	if o := d.ResolveOptions(); o != nil {
		b.WriteByte('|')
		b.WriteString(o.Key())
	}
	return b.String()
}

// Key renders the options deterministically
func (o *ResolveOptions) Key() string {
	if o == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("ext=" + strings.Join(o.Extensions, ","))
	b.WriteString(";main=" + strings.Join(o.MainFiles, ","))
	b.WriteString(";mod=" + strings.Join(o.Modules, ","))
	keys := make([]string, 0, len(o.Alias))
	for k := range o.Alias {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString(";alias=")
	for _, k := range keys {
		b.WriteString(k + ">" + o.Alias[k] + ",")
	}
	return b.String()
}

// Merge returns o with fields of override replacing the ones override sets
func (o *ResolveOptions) Merge(override *ResolveOptions) *ResolveOptions {
	if override == nil {
		return o
	}
	if o == nil {
		return override
	}
	merged := *o
	if len(override.Extensions) > 0 {
		merged.Extensions = override.Extensions
	}
	if len(override.MainFiles) > 0 {
		merged.MainFiles = override.MainFiles
	}
	if len(override.Modules) > 0 {
		merged.Modules = override.Modules
	}
	if len(override.Alias) > 0 {
		merged.Alias = make(map[string]string, len(o.Alias)+len(override.Alias))
		for k, v := range o.Alias {
			merged.Alias[k] = v
		}
		for k, v := range override.Alias {
			merged.Alias[k] = v
		}
	}
	return &merged
}

// EntryDependency is a caller-supplied starting point of the graph
type EntryDependency struct {
	Name      string
	Specifier string
	Directory string
	Options   *ResolveOptions
}

func (d *EntryDependency) Kind() DependencyKind { return DepEntry }
func (d *EntryDependency) Request() string { return d.Specifier }
func (d *EntryDependency) ResolveOptions() *ResolveOptions { return d.Options }
func (d *EntryDependency) ResolveContext() string { return d.Directory }

// ImportDependency is a static or dynamic request discovered in module content
type ImportDependency struct {
	DepKind   DependencyKind  `json:"kind"`
	Specifier string          `json:"specifier"`
	Options   *ResolveOptions `json:"options,omitempty"`
}

func (d *ImportDependency) Kind() DependencyKind { return d.DepKind }
func (d *ImportDependency) Request() string { return d.Specifier }
func (d *ImportDependency) ResolveOptions() *ResolveOptions { return d.Options }

// ContextDependency requests every module below a directory matching a pattern
type ContextDependency struct {
	Directory string `json:"directory"`
	Recursive bool   `json:"recursive"`
	Pattern   string `json:"pattern,omitempty"`
}

func (d *ContextDependency) Kind() DependencyKind { return DepContext }
func (d *ContextDependency) ResolveOptions() *ResolveOptions { return nil }

// Request includes the recursion flag and pattern so differing contexts never group together
func (d *ContextDependency) Request() string {
	r := d.Directory
	if d.Recursive {
		r += " recursive"
	}
	if d.Pattern != "" {
		r += " " + d.Pattern
	}
	return r
}

// SelfReferenceDependency refers to the module that declares it
type SelfReferenceDependency struct {
	Names []string `json:"names,omitempty"`
}

func (d *SelfReferenceDependency) Kind() DependencyKind { return DepSelfReference }
func (d *SelfReferenceDependency) Request() string { return "self" }
func (d *SelfReferenceDependency) ResolveOptions() *ResolveOptions { return nil }

// Signature renders a dependency list as comparable strings, used to detect whether a
// rebuilt module still declares the same dependencies.
func Signature(deps []Dependency) []string {
	out := make([]string, len(deps))
	for i, d := range deps {
		out[i] = ResourceKey(d)
	}
	return out
}
