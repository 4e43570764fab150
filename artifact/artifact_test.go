package artifact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/inferkit/core"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestFileStore_ReadValidatedJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stress/meta.json", `{"feature_cols": ["a", "b"]}`)
	writeFile(t, dir, "stress/bad_meta.json", `{"feature_cols": []}`)
	writeFile(t, dir, "stress/dup_meta.json", `{"feature_cols": ["a", "a"]}`)
	writeFile(t, dir, "stress/broken.json", `{"feature_cols": [`)

	s := NewFileStore(dir)
	ctx := context.Background()

	var meta struct {
		FeatureCols []string `json:"feature_cols"`
	}
	require.NoError(t, ReadValidatedJSON(ctx, s, "stress/meta.json", SchemaMeta, &meta))
	assert.Equal(t, []string{"a", "b"}, meta.FeatureCols)

	for _, name := range []string{"stress/bad_meta.json", "stress/dup_meta.json", "stress/broken.json", "stress/missing.json"} {
		err := ReadValidatedJSON(ctx, s, name, SchemaMeta, &meta)
		require.Error(t, err, name)
		assert.True(t, core.IsArtifactLoadError(err), name)
		assert.Contains(t, err.Error(), filepath.Join(dir, filepath.FromSlash(name)))
	}
}

func TestValidate_Scaler(t *testing.T) {
	assert.NoError(t, Validate(SchemaScaler, []byte(`{"age": {"mean": 1.5, "std": 0.2}}`)))
	assert.Error(t, Validate(SchemaScaler, []byte(`{"age": {"mean": 1.5}}`)))
	assert.Error(t, Validate("nope", []byte(`{}`)))
}

func TestHTTPStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models/labels.json" {
			_, _ = w.Write([]byte(`["apple", "bag"]`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL+"/models/", 0)
	defer s.Close()
	ctx := context.Background()

	var labels []string
	require.NoError(t, ReadJSON(ctx, s, "labels.json", &labels))
	assert.Equal(t, []string{"apple", "bag"}, labels)
	assert.Equal(t, srv.URL+"/models/labels.json", s.Describe("labels.json"))

	err := ReadJSON(ctx, s, "missing.json", &labels)
	assert.True(t, core.IsArtifactLoadError(err))
}

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, "/srv/artifacts", Options{})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = New(ctx, "https://models.example.com/base", Options{})
	require.NoError(t, err)
	assert.IsType(t, &HTTPStore{}, s)
}

func TestParseGCSURI(t *testing.T) {
	bucket, prefix, err := parseGCSURI("gs://ml-artifacts/prod/v3/")
	require.NoError(t, err)
	assert.Equal(t, "ml-artifacts", bucket)
	assert.Equal(t, "prod/v3", prefix)

	g := &GCSStore{Bucket: bucket, Prefix: prefix}
	assert.Equal(t, "gs://ml-artifacts/prod/v3/stress/meta.json", g.Describe("stress/meta.json"))

	_, _, err = parseGCSURI("gs:///x")
	assert.Error(t, err)
}
