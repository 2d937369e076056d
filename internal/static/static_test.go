package static

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/deploystatic/internal/config"
)

func writeFiles(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, name := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(name), 0o644))
	}
}

// layout creates a project with two apps, a project static dir, a prefixed
// vendor dir and a "static" directory that is not a static root.
func layout(t *testing.T) (string, []Finder) {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root,
		"project/apps/shop/static/css/a.css",
		"project/apps/shop/static/css/a.css~",
		"project/apps/shop/static/.cache/x.js",
		"project/apps/blog/static/js/b.js",
		"project/apps/blog/templates/index.html",
		"project/apps/nostatic/models.py",
		"project/static/css/site.css",
		"project/vendor/jquery.js",
		"project/docs/static/readme.txt",
	)

	cfg := &config.Config{Static: config.StaticConfig{
		Segment: "static",
		Dirs: []config.StaticDir{
			{Path: filepath.Join(root, "project/static")},
			{Path: filepath.Join(root, "project/vendor"), Prefix: "vendor"},
		},
		AppDirs: []string{filepath.Join(root, "project/apps/*")},
	}}

	finders, err := NewFinders(cfg)
	require.NoError(t, err)
	return root, finders
}

func TestFileSystemFinder_Find(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "assets/css/site.css", "vendor/jquery.js")

	f := NewFileSystemFinder([]config.StaticDir{
		{Path: filepath.Join(root, "assets")},
		{Path: filepath.Join(root, "vendor"), Prefix: "lib"},
	})

	found, err := f.Find("css/site.css")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "assets/css/site.css")}, found)

	found, err = f.Find("lib/jquery.js")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "vendor/jquery.js")}, found)

	// Without its prefix the vendor file is unknown
	found, err = f.Find("jquery.js")
	require.NoError(t, err)
	assert.Empty(t, found)

	// Directories and escaping paths are never static files
	found, err = f.Find("css")
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = f.Find("../vendor/jquery.js")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestAppDirectoriesFinder_OnlyAppsWithStatic(t *testing.T) {
	root, _ := layout(t)

	f, err := NewAppDirectoriesFinder([]string{filepath.Join(root, "project/apps/*")}, "static")
	require.NoError(t, err)

	require.Len(t, f.locations, 2)
	assert.Equal(t, filepath.Join(root, "project/apps/blog/static"), f.locations[0].root)
	assert.Equal(t, filepath.Join(root, "project/apps/shop/static"), f.locations[1].root)
}

func TestList_IgnorePatterns(t *testing.T) {
	_, finders := layout(t)

	files, err := ListAll(finders, config.DefaultIgnorePatterns)
	require.NoError(t, err)

	rels := make([]string, 0, len(files))
	for _, f := range files {
		rels = append(rels, f.RelPath)
	}
	assert.ElementsMatch(t, []string{"css/site.css", "vendor/jquery.js", "js/b.js", "css/a.css"}, rels)
}

func TestListAll_FirstFinderWins(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "one/css/a.css", "two/css/a.css")

	finders := []Finder{
		NewFileSystemFinder([]config.StaticDir{{Path: filepath.Join(root, "one")}}),
		NewFileSystemFinder([]config.StaticDir{{Path: filepath.Join(root, "two")}}),
	}

	files, err := ListAll(finders, nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(root, "one/css/a.css"), files[0].AbsPath)

	first, err := FindFirst(finders, "css/a.css")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "one/css/a.css"), first)

	missing, err := FindFirst(finders, "css/missing.css")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestResolver(t *testing.T) {
	root, finders := layout(t)
	r := NewResolver(string(filepath.Separator)+"static"+string(filepath.Separator), finders...)

	tests := []struct {
		name   string
		path   string
		want   string
		wantOK bool
	}{
		{name: "app static file", path: "project/apps/shop/static/css/a.css", want: "css/a.css", wantOK: true},
		{name: "project static dir", path: "project/static/css/site.css", want: "css/site.css", wantOK: true},
		{name: "other app", path: "project/apps/blog/static/js/b.js", want: "js/b.js", wantOK: true},
		{name: "template is not static", path: "project/apps/blog/templates/index.html"},
		{name: "static segment in unrelated directory", path: "project/docs/static/readme.txt"},
		{name: "missing file", path: "project/apps/shop/static/css/gone.css"},
		{name: "no segment", path: "project/vendor/jquery.js"},
		{name: "segment only", path: "project/static"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, ok, err := r.Resolve(filepath.Join(root, filepath.FromSlash(tt.path)))
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, rel)
		})
	}
}

func TestResolver_LaterSegmentConfirmed(t *testing.T) {
	root := t.TempDir()
	// The first "static" belongs to the checkout path, the second is the app's
	writeFiles(t, root, "static/site/apps/shop/static/css/a.css")

	apps, err := NewAppDirectoriesFinder([]string{filepath.Join(root, "static/site/apps/*")}, "static")
	require.NoError(t, err)
	r := NewResolver(string(filepath.Separator)+"static"+string(filepath.Separator), apps)

	rel, ok, err := r.Resolve(filepath.Join(root, "static/site/apps/shop/static/css/a.css"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "css/a.css", rel)
}

func TestResolver_Covers(t *testing.T) {
	root, finders := layout(t)
	r := NewResolver(string(filepath.Separator)+"static"+string(filepath.Separator), finders...)

	// Deleted files under a static root are still covered
	assert.True(t, r.Covers(filepath.Join(root, "project/apps/shop/static/css/gone.css")))
	assert.True(t, r.Covers(filepath.Join(root, "project/static/css/gone.css")))

	// A static directory no finder serves is not
	assert.False(t, r.Covers(filepath.Join(root, "project/docs/static/notes.md")))
	assert.False(t, r.Covers(filepath.Join(root, "project/statics/css/a.css")))
	assert.False(t, r.Covers(filepath.Join(root, "project/static")))
}

func TestResolver_RelativeAppDirs(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "project/apps/shop/static/css/a.css")

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg := &config.Config{Static: config.StaticConfig{
		Segment: "static",
		AppDirs: []string{"project/apps/*"},
	}}
	finders, err := NewFinders(cfg)
	require.NoError(t, err)

	abs, err := filepath.Abs(filepath.Join("project", "apps", "shop", "static", "css", "a.css"))
	require.NoError(t, err)

	r := NewResolver(cfg.StaticSegment(), finders...)
	rel, ok, err := r.Resolve(abs)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "css/a.css", rel)

	files, err := ListAll(finders, nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, abs, files[0].AbsPath)
}

func TestFind_ParentReplacedByFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "static/js/lib", "static/css/a.css")

	f := NewFileSystemFinder([]config.StaticDir{{Path: filepath.Join(root, "static")}})

	found, err := f.Find("js/lib/old.js")
	require.NoError(t, err)
	assert.Empty(t, found)

	r := NewResolver(string(filepath.Separator)+"static"+string(filepath.Separator), f)
	rel, ok, err := r.Resolve(filepath.Join(root, "static/js/lib/old.js"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, rel)
}
