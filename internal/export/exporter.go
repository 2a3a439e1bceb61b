package export

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"bundlegraph/internal/graph"
	"bundlegraph/internal/module"
)

// Build collects the graph into an export. Modules are sorted by identifier and their
// connections by request.
func Build(g *graph.ModuleGraph, opts Options) *GraphExport {
	short := shortener(opts.Context)

	exp := &GraphExport{
		Metadata: ExportMetadata{
			Context:         opts.Context,
			ModuleCount:     g.ModuleCount(),
			ConnectionCount: g.ConnectionCount(),
		},
		Entries: make([]ExportEntry, 0),
		Modules: make([]ExportModule, 0, g.ModuleCount()),
	}

	for _, id := range g.EntryDependencies() {
		dep, _ := g.Dependency(id)
		entry := ExportEntry{Request: dep.Request()}
		if e, ok := dep.(*module.EntryDependency); ok {
			entry.Name = e.Name
		}
		if c, ok := g.Connection(id); ok {
			entry.Module = short(string(c.Target))
		}
		exp.Entries = append(exp.Entries, entry)
	}
	sort.SliceStable(exp.Entries, func(i, j int) bool { return exp.Entries[i].Name < exp.Entries[j].Name })
	exp.Metadata.EntryCount = len(exp.Entries)

	for _, id := range g.ModuleIdentifiers() {
		m, _ := g.Module(id)
		gm := g.MustGraphModule(id)

		em := ExportModule{
			Identifier:  short(string(id)),
			Kind:        m.Kind().String(),
			Directory:   short(m.Context()),
			ExportsType: gm.BuildMeta.ExportsType,
			Size:        gm.BuildMeta.Size,
			CacheHit:    gm.Profile.CacheHit,
			Incoming:    len(g.IncomingConnections(id)),
		}
		if gm.Issuer != nil {
			em.Issuer = short(string(*gm.Issuer))
		}
		for _, c := range g.OutgoingConnections(id) {
			dep, _ := g.Dependency(c.Dependency)
			em.Connections = append(em.Connections, ExportConnection{
				Kind:    string(dep.Kind()),
				Request: dep.Request(),
				Target:  short(string(c.Target)),
			})
		}
		sort.SliceStable(em.Connections, func(i, j int) bool {
			a, b := em.Connections[i], em.Connections[j]
			if a.Request != b.Request {
				return a.Request < b.Request
			}
			return a.Kind < b.Kind
		})
		exp.Modules = append(exp.Modules, em)
	}
	return exp
}

// shortener strips the context directory from every path inside an identifier
func shortener(context string) func(string) string {
	if context == "" {
		return func(s string) string { return s }
	}
	prefix := filepath.Clean(context) + string(filepath.Separator)
	return func(s string) string {
		if s == filepath.Clean(context) {
			return "."
		}
		return strings.ReplaceAll(s, prefix, "")
	}
}

// Write encodes the graph in the given format
func Write(w io.Writer, g *graph.ModuleGraph, format string, opts Options) error {
	exp := Build(g, opts)
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(exp)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(exp); err != nil {
			return err
		}
		return enc.Close()
	case FormatText:
		_, err := io.WriteString(w, FormatTextExport(exp))
		return err
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// FormatTextExport renders the export grouped by directory
func FormatTextExport(exp *GraphExport) string {
	var sb strings.Builder

	if exp.Metadata.Context != "" {
		sb.WriteString(fmt.Sprintf("# Context: %s\n", exp.Metadata.Context))
	}
	sb.WriteString(fmt.Sprintf("# Modules: %d | Connections: %d | Entries: %d\n\n",
		exp.Metadata.ModuleCount, exp.Metadata.ConnectionCount, exp.Metadata.EntryCount))

	for _, e := range exp.Entries {
		target := e.Module
		if target == "" {
			target = "(unresolved)"
		}
		sb.WriteString(fmt.Sprintf("* %s: %s -> %s\n", e.Name, e.Request, target))
	}
	if len(exp.Entries) > 0 {
		sb.WriteString("\n")
	}

	for _, dir := range Summarize(exp) {
		sb.WriteString(fmt.Sprintf("## %s (%d modules)\n\n", dir.Path, dir.ModuleCount))
		for _, m := range exp.Modules {
			if directoryKey(m) != dir.Path {
				continue
			}
			line := fmt.Sprintf("  ! %s [%s", m.Identifier, m.Kind)
			if m.ExportsType != "" {
				line += ", " + m.ExportsType
			}
			line += fmt.Sprintf(", %dB, in %d]", m.Size, m.Incoming)
			sb.WriteString(line + "\n")
			for _, c := range m.Connections {
				sb.WriteString(fmt.Sprintf("    # %s %s -> %s\n", c.Kind, c.Request, c.Target))
			}
		}
		sb.WriteString("\n")
	}

	if bridges := Bridges(exp); len(bridges) > 0 {
		sb.WriteString("## Cross-directory imports\n\n")
		for _, b := range bridges {
			sb.WriteString(fmt.Sprintf("  %s -> %s (%d)\n", b.From, b.To, b.Count))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("---\n")
	sb.WriteString("Legend:\n")
	sb.WriteString("  *  = entry\n")
	sb.WriteString("  !  = module [kind, exports type, size, incoming connections]\n")
	sb.WriteString("  #  = outgoing connection\n")
	return sb.String()
}
