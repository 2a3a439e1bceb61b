package export

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"bundlegraph/internal/graph"
	"bundlegraph/internal/jsmodule"
	"bundlegraph/internal/module"
	"bundlegraph/internal/testutil"
)

func ident(s string) *module.Identifier {
	id := module.Identifier(s)
	return &id
}

func imp(kind module.DependencyKind, spec string) module.Dependency {
	return &module.ImportDependency{DepKind: kind, Specifier: spec}
}

// sampleGraph wires main -> src/index.js -> {src/util.js, lib/a.js}, src/util.js -> fs (ignored).
func sampleGraph(t *testing.T) *graph.ModuleGraph {
	t.Helper()
	g := graph.New()

	index := jsmodule.New("/app/src/index.js", nil, "")
	util := jsmodule.New("/app/src/util.js", nil, "")
	lib := jsmodule.New("/app/lib/a.js", nil, "")
	fs := module.NewIgnoredModule("fs")

	g.AddModule(index, nil)
	g.AddModule(util, ident("/app/src/index.js"))
	g.AddModule(lib, ident("/app/src/index.js"))
	g.AddModule(fs, ident("/app/src/util.js"))
	g.MustGraphModule("/app/src/index.js").BuildMeta = module.BuildMeta{ExportsType: "namespace", Size: 42}

	entry := g.AddDependency(&module.EntryDependency{Name: "main", Specifier: "./src/index.js", Directory: "/app"}, nil)
	g.Connect(nil, entry, index.Identifier())

	ids := g.SetDependencies(index.Identifier(), []module.Dependency{
		imp(module.DepESMImport, "./util"),
		imp(module.DepRequire, "../lib/a"),
	})
	g.Connect(ident("/app/src/index.js"), ids[0], util.Identifier())
	g.Connect(ident("/app/src/index.js"), ids[1], lib.Identifier())

	ids = g.SetDependencies(util.Identifier(), []module.Dependency{imp(module.DepRequire, "fs")})
	g.Connect(ident("/app/src/util.js"), ids[0], fs.Identifier())
	return g
}

func TestBuild(t *testing.T) {
	exp := Build(sampleGraph(t), Options{Context: "/app"})

	wantMeta := ExportMetadata{Context: "/app", ModuleCount: 4, ConnectionCount: 4, EntryCount: 1}
	if exp.Metadata != wantMeta {
		t.Errorf("Metadata = %+v, want %+v", exp.Metadata, wantMeta)
	}
	wantEntries := []ExportEntry{{Name: "main", Request: "./src/index.js", Module: "src/index.js"}}
	if !reflect.DeepEqual(exp.Entries, wantEntries) {
		t.Errorf("Entries = %+v", exp.Entries)
	}

	var ids []string
	for _, m := range exp.Modules {
		ids = append(ids, m.Identifier)
	}
	wantIDs := []string{"lib/a.js", "src/index.js", "src/util.js", "ignored|fs"}
	if !reflect.DeepEqual(ids, wantIDs) {
		t.Fatalf("module order = %v, want %v", ids, wantIDs)
	}

	index := exp.Modules[1]
	wantConns := []ExportConnection{
		{Kind: "cjs-require", Request: "../lib/a", Target: "lib/a.js"},
		{Kind: "esm-import", Request: "./util", Target: "src/util.js"},
	}
	if !reflect.DeepEqual(index.Connections, wantConns) {
		t.Errorf("connections = %+v\nwant %+v", index.Connections, wantConns)
	}
	if index.Issuer != "" || index.Incoming != 1 || index.Directory != "src" || index.Size != 42 {
		t.Errorf("index = %+v", index)
	}
	if util := exp.Modules[2]; util.Issuer != "src/index.js" || util.Kind != "normal" {
		t.Errorf("util = %+v", util)
	}
	if ignored := exp.Modules[3]; ignored.Kind != "raw" || ignored.Directory != "" {
		t.Errorf("ignored = %+v", ignored)
	}
}

func TestBuildWithoutContext(t *testing.T) {
	exp := Build(sampleGraph(t), Options{})
	if exp.Modules[0].Identifier != "/app/lib/a.js" {
		t.Errorf("identifier = %q, want the absolute path", exp.Modules[0].Identifier)
	}
}

func TestSummarizeAndBridges(t *testing.T) {
	exp := Build(sampleGraph(t), Options{Context: "/app"})

	wantDirs := []DirectorySummary{{"-", 1}, {"lib", 1}, {"src", 2}}
	if got := Summarize(exp); !reflect.DeepEqual(got, wantDirs) {
		t.Errorf("Summarize() = %+v, want %+v", got, wantDirs)
	}
	wantBridges := []Bridge{{From: "src", To: "-", Count: 1}, {From: "src", To: "lib", Count: 1}}
	if got := Bridges(exp); !reflect.DeepEqual(got, wantBridges) {
		t.Errorf("Bridges() = %+v, want %+v", got, wantBridges)
	}
}

func TestWriteFormats(t *testing.T) {
	g := sampleGraph(t)
	opts := Options{Context: "/app"}

	var jsonOut bytes.Buffer
	if err := Write(&jsonOut, g, FormatJSON, opts); err != nil {
		t.Fatalf("Write(json) error = %v", err)
	}
	var fromJSON GraphExport
	if err := json.Unmarshal(jsonOut.Bytes(), &fromJSON); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !reflect.DeepEqual(&fromJSON, Build(g, opts)) {
		t.Error("JSON output does not match the export")
	}

	var yamlOut bytes.Buffer
	if err := Write(&yamlOut, g, FormatYAML, opts); err != nil {
		t.Fatalf("Write(yaml) error = %v", err)
	}
	var fromYAML GraphExport
	if err := yaml.Unmarshal(yamlOut.Bytes(), &fromYAML); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if len(fromYAML.Modules) != 4 || fromYAML.Modules[1].Connections[0].Target != "lib/a.js" {
		t.Errorf("YAML export = %+v", fromYAML)
	}
	if !strings.Contains(yamlOut.String(), "moduleCount: 4") {
		t.Errorf("YAML keys should be camelCase:\n%s", yamlOut.String())
	}

	var textOut bytes.Buffer
	if err := Write(&textOut, g, FormatText, opts); err != nil {
		t.Fatalf("Write(text) error = %v", err)
	}
	for _, want := range []string{
		"# Modules: 4 | Connections: 4 | Entries: 1",
		"* main: ./src/index.js -> src/index.js",
		"## src (2 modules)",
		"  ! src/index.js [normal, namespace, 42B, in 1]",
		"    # esm-import ./util -> src/util.js",
		"  src -> lib (1)",
	} {
		if !strings.Contains(textOut.String(), want) {
			t.Errorf("text output missing %q:\n%s", want, textOut.String())
		}
	}

	if err := Write(&bytes.Buffer{}, g, "xml", opts); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	var first, second bytes.Buffer
	if err := Write(&first, sampleGraph(t), FormatJSON, Options{}); err != nil {
		t.Fatal(err)
	}
	if err := Write(&second, sampleGraph(t), FormatJSON, Options{}); err != nil {
		t.Fatal(err)
	}
	if first.String() != second.String() {
		t.Error("two exports of equal graphs differ")
	}
}

func TestGoldenTextExport(t *testing.T) {
	var out bytes.Buffer
	if err := Write(&out, sampleGraph(t), FormatText, Options{Context: "/app"}); err != nil {
		t.Fatalf("Write(text) error = %v", err)
	}
	testutil.CompareGolden(t, "sample.txt", out.Bytes())
}
