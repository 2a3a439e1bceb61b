// Package export dumps a module graph in a deterministic order as JSON, YAML or text.
package export

// Output formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatText = "text"
)

// GraphExport is the main export structure
type GraphExport struct {
	Metadata ExportMetadata `json:"metadata" yaml:"metadata"`
	Entries  []ExportEntry  `json:"entries" yaml:"entries"`
	Modules  []ExportModule `json:"modules" yaml:"modules"`
}

// ExportMetadata contains counts over the whole graph
type ExportMetadata struct {
	Context         string `json:"context,omitempty" yaml:"context,omitempty"`
	ModuleCount     int    `json:"moduleCount" yaml:"moduleCount"`
	ConnectionCount int    `json:"connectionCount" yaml:"connectionCount"`
	EntryCount      int    `json:"entryCount" yaml:"entryCount"`
}

// ExportEntry is a named entry and the module it resolved to
type ExportEntry struct {
	Name    string `json:"name" yaml:"name"`
	Request string `json:"request" yaml:"request"`
	Module  string `json:"module,omitempty" yaml:"module,omitempty"`
}

// ExportModule represents a module in the export
type ExportModule struct {
	Identifier  string             `json:"identifier" yaml:"identifier"`
	Kind        string             `json:"kind" yaml:"kind"`
	Directory   string             `json:"directory,omitempty" yaml:"directory,omitempty"`
	Issuer      string             `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	ExportsType string             `json:"exportsType,omitempty" yaml:"exportsType,omitempty"`
	Size        int                `json:"size" yaml:"size"`
	CacheHit    bool               `json:"cacheHit,omitempty" yaml:"cacheHit,omitempty"`
	Incoming    int                `json:"incoming" yaml:"incoming"`
	Connections []ExportConnection `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// ExportConnection is an outgoing resolved edge
type ExportConnection struct {
	Kind    string `json:"kind" yaml:"kind"`
	Request string `json:"request" yaml:"request"`
	Target  string `json:"target" yaml:"target"`
}

// Options configures the export
type Options struct {
	// Context shortens paths under this directory to relative ones
	Context string
}
