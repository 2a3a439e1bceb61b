// Package jsmodule implements the JavaScript and TypeScript module kinds: normal modules
// backed by one file and context modules standing for a directory (require.context).
package jsmodule

import "bundlegraph/internal/module"

// Language is a source language the scanner understands
type Language string

const (
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangJSON       Language = "json"
)

// LanguageFromExtension returns the Language for a file extension. Files of other
// extensions are treated as assets.
func LanguageFromExtension(ext string) (Language, bool) {
	switch ext {
	case ".js", ".mjs", ".cjs", ".jsx":
		return LangJavaScript, true
	case ".ts", ".mts", ".cts":
		return LangTypeScript, true
	case ".tsx":
		return LangTSX, true
	case ".json":
		return LangJSON, true
	default:
		return "", false
	}
}

// Request is one reference found in module source
type Request struct {
	Kind      module.DependencyKind
	Specifier string
	// Recursive and Pattern apply to require.context
	Recursive bool
	Pattern   string
	// Names is the export path of a self reference, e.g. ["exports", "foo"]
	Names  []string
	Offset int
}

// ScanResult is what a scan found in one source file
type ScanResult struct {
	Requests []Request
	// ESM is set when import or export syntax was seen, CommonJS for require or exports use
	ESM          bool
	CommonJS     bool
	SyntaxErrors bool
}

// DefaultContextPattern matches every file of a context directory
const DefaultContextPattern = `^\./.*$`
