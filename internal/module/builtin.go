package module

import (
	"context"
	"fmt"

	"bundlegraph/internal/errors"
)

// RawModule has fixed source and no dependencies. Requests aliased to false resolve to one.
type RawModule struct {
	ID       Identifier
	Source   string
	Readable string
}

// NewIgnoredModule creates the raw module standing in for an ignored request
func NewIgnoredModule(request string) *RawModule {
	return &RawModule{
		ID:       Identifier("ignored|" + request),
		Source:   "/* (ignored) */",
		Readable: request + " (ignored)",
	}
}

func (m *RawModule) Identifier() Identifier { return m.ID }
func (m *RawModule) Kind() Kind { return KindRaw }
func (m *RawModule) SourceKinds() []SourceKind { return []SourceKind{SourceJavaScript} }
func (m *RawModule) Context() string { return "" }

// Build reports the fixed source; raw modules never discover dependencies
func (m *RawModule) Build(ctx context.Context, bc *BuildContext) (*BuildResult, error) {
	return &BuildResult{
		Info: BuildInfo{Cacheable: true},
		Meta: BuildMeta{Size: len(m.Source)},
	}, nil
}

// SelfModule stands for the issuer of a self-reference dependency. The make pass
// connects it to the issuer and never inserts it into the graph.
type SelfModule struct {
	Issuer Identifier
}

func (m *SelfModule) Identifier() Identifier { return Identifier("self " + string(m.Issuer)) }
func (m *SelfModule) Kind() Kind { return KindSelf }
func (m *SelfModule) SourceKinds() []SourceKind { return nil }
func (m *SelfModule) Context() string { return "" }

// Build is never valid for a self module
func (m *SelfModule) Build(ctx context.Context, bc *BuildContext) (*BuildResult, error) {
	return nil, errors.New(errors.GraphInvariant, fmt.Sprintf("self module of %s must not be built", m.Issuer))
}
