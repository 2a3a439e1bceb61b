package buildcache

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"bundlegraph/internal/module"
	"bundlegraph/internal/slogutil"
	"bundlegraph/internal/storage"
)

// fileModule builds by reading one file; builds counts invocations
type fileModule struct {
	path   string
	builds atomic.Int64
}

func (m *fileModule) Identifier() module.Identifier { return module.Identifier(m.path) }
func (m *fileModule) Kind() module.Kind { return module.KindNormal }
func (m *fileModule) SourceKinds() []module.SourceKind { return nil }
func (m *fileModule) Context() string { return filepath.Dir(m.path) }

func (m *fileModule) Build(ctx context.Context, bc *module.BuildContext) (*module.BuildResult, error) {
	m.builds.Add(1)
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return &module.BuildResult{
		Dependencies: []module.Dependency{&module.ImportDependency{DepKind: module.DepESMImport, Specifier: "./dep"}},
		Info: module.BuildInfo{
			Cacheable:           true,
			Hash:                HashContent(data),
			FileDependencies:    module.NewFileSet(m.path),
			MissingDependencies: module.NewFileSet(m.path + ".ts"),
		},
		Meta: module.BuildMeta{Size: len(data)},
	}, nil
}

func compute(m *fileModule) func(context.Context) (*module.BuildResult, error) {
	return func(ctx context.Context) (*module.BuildResult, error) {
		return m.Build(ctx, &module.BuildContext{})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func setup(t *testing.T) (*fileModule, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.js")
	writeFile(t, path, "import './dep'")
	return &fileModule{path: path}, dir
}

func TestHitWhileUnchanged(t *testing.T) {
	m, _ := setup(t)
	c := New()
	ctx := context.Background()

	_, hit, err := c.Build(ctx, m, compute(m))
	if err != nil || hit {
		t.Fatalf("first Build = hit %v, err %v", hit, err)
	}
	res, hit, err := c.Build(ctx, m, compute(m))
	if err != nil || !hit {
		t.Fatalf("second Build = hit %v, err %v", hit, err)
	}
	if len(res.Dependencies) != 1 {
		t.Errorf("cached result lost dependencies: %+v", res)
	}
	if m.builds.Load() != 1 {
		t.Errorf("builds = %d, want 1", m.builds.Load())
	}
	if s := c.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestContentChangeInvalidates(t *testing.T) {
	m, _ := setup(t)
	c := New()
	ctx := context.Background()

	c.Build(ctx, m, compute(m))
	writeFile(t, m.path, "import './other'")

	_, hit, err := c.Build(ctx, m, compute(m))
	if err != nil || hit {
		t.Fatalf("Build after change = hit %v, err %v", hit, err)
	}
	if m.builds.Load() != 2 {
		t.Errorf("builds = %d, want 2", m.builds.Load())
	}
}

func TestMissingPathAppearingInvalidates(t *testing.T) {
	m, _ := setup(t)
	c := New()
	ctx := context.Background()

	c.Build(ctx, m, compute(m))
	writeFile(t, m.path+".ts", "export {}")

	if _, hit, _ := c.Build(ctx, m, compute(m)); hit {
		t.Error("a previously missing path now exists; the entry must be stale")
	}
}

func TestConcurrentBuildsComputeOnce(t *testing.T) {
	m, _ := setup(t)
	c := New()
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	var once sync.Once

	slow := func(ctx context.Context) (*module.BuildResult, error) {
		once.Do(started.Done)
		<-release
		return m.Build(ctx, &module.BuildContext{})
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.Build(context.Background(), m, slow); err != nil {
				t.Errorf("Build failed: %v", err)
			}
		}()
	}
	started.Wait()
	close(release)
	wg.Wait()

	if m.builds.Load() != 1 {
		t.Errorf("builds = %d, want 1", m.builds.Load())
	}
}

func TestErrorsAndUncacheableResultsAreNotStored(t *testing.T) {
	m, _ := setup(t)
	c := New()
	ctx := context.Background()

	boom := stderrors.New("boom")
	_, _, err := c.Build(ctx, m, func(context.Context) (*module.BuildResult, error) { return nil, boom })
	if !stderrors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if c.Len() != 0 {
		t.Error("failed build should not be cached")
	}

	_, _, err = c.Build(ctx, m, func(context.Context) (*module.BuildResult, error) {
		return &module.BuildResult{Info: module.BuildInfo{Cacheable: false}}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Error("uncacheable result should not be cached")
	}
}

func TestPersistentTier(t *testing.T) {
	m, dir := setup(t)
	db, err := storage.Open(filepath.Join(dir, ".cache"), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("storage.Open failed: %v", err)
	}
	defer db.Close()
	store := storage.NewCache(db)
	ctx := context.Background()

	first := New(WithStore(store))
	if _, hit, err := first.Build(ctx, m, compute(m)); err != nil || hit {
		t.Fatalf("first Build = hit %v, err %v", hit, err)
	}

	second := New(WithStore(store))
	res, hit, err := second.Build(ctx, m, compute(m))
	if err != nil || !hit {
		t.Fatalf("second cache Build = hit %v, err %v", hit, err)
	}
	if m.builds.Load() != 1 {
		t.Errorf("builds = %d, want 1", m.builds.Load())
	}
	if second.Stats().PersistentHits != 1 {
		t.Errorf("stats = %+v", second.Stats())
	}
	dep, ok := res.Dependencies[0].(*module.ImportDependency)
	if !ok || dep.Specifier != "./dep" {
		t.Errorf("restored dependency = %#v", res.Dependencies[0])
	}
	if !res.Info.FileDependencies.Has(m.path) {
		t.Error("restored build info lost its file dependencies")
	}

	second.Invalidate(m.Identifier())
	if _, found, _ := store.Get(m.path); found {
		t.Error("Invalidate should remove the persisted entry")
	}
}

func TestCodecRejectsUnknownDependency(t *testing.T) {
	res := &module.BuildResult{Dependencies: []module.Dependency{&module.EntryDependency{Specifier: "./x"}}}
	if _, err := encodeResult(res); err == nil {
		t.Error("entry dependencies are never produced by builds and cannot be persisted")
	}
}

func TestFingerprintContextDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.js"), "")
	fp := Fingerprint(module.BuildInfo{ContextDependencies: module.NewFileSet(dir)})

	if !StillValid(fp) {
		t.Fatal("fingerprint should be valid right after it was taken")
	}
	writeFile(t, filepath.Join(dir, "b.js"), "")
	if StillValid(fp) {
		t.Error("adding a file to a context directory should invalidate")
	}
}
