package buildcache

import (
	"encoding/json"
	"fmt"

	"bundlegraph/internal/errors"
	"bundlegraph/internal/module"
)

type persistedDependency struct {
	Kind      module.DependencyKind  `json:"kind"`
	Specifier string                 `json:"specifier,omitempty"`
	Options   *module.ResolveOptions `json:"options,omitempty"`
	Directory string                 `json:"directory,omitempty"`
	Recursive bool                   `json:"recursive,omitempty"`
	Pattern   string                 `json:"pattern,omitempty"`
	Names     []string               `json:"names,omitempty"`
}

type persistedDiagnostic struct {
	Severity errors.Severity  `json:"severity"`
	Code     errors.ErrorCode `json:"code,omitempty"`
	Message  string           `json:"message"`
	Module   string           `json:"module,omitempty"`
}

type persistedResult struct {
	Dependencies []persistedDependency `json:"dependencies"`
	Info         module.BuildInfo      `json:"info"`
	Meta         module.BuildMeta      `json:"meta"`
	Diagnostics  []persistedDiagnostic `json:"diagnostics,omitempty"`
}

// encodeResult serializes a build result. Results carrying dependency types it does not
// know are reported as not persistable.
func encodeResult(res *module.BuildResult) ([]byte, error) {
	p := persistedResult{Info: res.Info, Meta: res.Meta}
	for _, d := range res.Dependencies {
		switch dep := d.(type) {
		case *module.ImportDependency:
			p.Dependencies = append(p.Dependencies, persistedDependency{Kind: dep.DepKind, Specifier: dep.Specifier, Options: dep.Options})
		case *module.ContextDependency:
			p.Dependencies = append(p.Dependencies, persistedDependency{Kind: module.DepContext, Directory: dep.Directory, Recursive: dep.Recursive, Pattern: dep.Pattern})
		case *module.SelfReferenceDependency:
			p.Dependencies = append(p.Dependencies, persistedDependency{Kind: module.DepSelfReference, Names: dep.Names})
		default:
			return nil, fmt.Errorf("dependency type %T cannot be persisted", d)
		}
	}
	for _, d := range res.Diagnostics {
		p.Diagnostics = append(p.Diagnostics, persistedDiagnostic{Severity: d.Severity, Code: d.Code, Message: d.Message, Module: d.Module})
	}
	return json.Marshal(p)
}

func decodeResult(data []byte) (*module.BuildResult, error) {
	var p persistedResult
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	res := &module.BuildResult{Info: p.Info, Meta: p.Meta}
	for _, d := range p.Dependencies {
		switch d.Kind {
		case module.DepContext:
			res.Dependencies = append(res.Dependencies, &module.ContextDependency{Directory: d.Directory, Recursive: d.Recursive, Pattern: d.Pattern})
		case module.DepSelfReference:
			res.Dependencies = append(res.Dependencies, &module.SelfReferenceDependency{Names: d.Names})
		case module.DepESMImport, module.DepESMReexport, module.DepRequire, module.DepDynamicImport:
			res.Dependencies = append(res.Dependencies, &module.ImportDependency{DepKind: d.Kind, Specifier: d.Specifier, Options: d.Options})
		default:
			return nil, fmt.Errorf("unknown dependency kind %q", d.Kind)
		}
	}
	for _, d := range p.Diagnostics {
		res.Diagnostics = append(res.Diagnostics, errors.Diagnostic{Severity: d.Severity, Code: d.Code, Message: d.Message, Module: d.Module})
	}
	return res, nil
}
