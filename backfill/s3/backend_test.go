package s3

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pithecene-io/backfill/backfill"
)

func newTestBackend(t *testing.T, client *MockS3Client, prefix string) *Backend {
	t.Helper()
	b, err := New(client, Config{Bucket: "archive", Prefix: prefix})
	require.NoError(t, err)
	return b
}

// -----------------------------------------------------------------------------
// Construction
// -----------------------------------------------------------------------------

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{Bucket: "archive"})
	require.EqualError(t, err, "s3: client is required")

	_, err = New(NewMockS3Client(), Config{})
	require.EqualError(t, err, "s3: bucket is required")

	b, err := New(NewMockS3Client(), Config{Bucket: "archive", Prefix: "exports"})
	require.NoError(t, err)
	assert.Equal(t, "archive", b.Bucket())
	assert.Equal(t, "exports/", b.prefix)
}

// -----------------------------------------------------------------------------
// Resolve
// -----------------------------------------------------------------------------

func TestResolve_Missing(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	client := NewMockS3Client()
	b, err := New(client, Config{Bucket: "archive", Logger: zap.New(core)})
	require.NoError(t, err)

	_, err = b.Resolve(t.Context(), "datasets/latest/acme/index.json")
	require.ErrorIs(t, err, backfill.ErrNotFound)
	assert.Equal(t, 1, client.HeadObjectCalls)
	assert.Equal(t, 1, logs.FilterMessage("archive object does not exist").Len())
}

func TestResolve_Found(t *testing.T) {
	client := NewMockS3Client()
	client.Put("exports/datasets/latest/acme/index.json", []byte(`{"name":"acme"}`))
	b := newTestBackend(t, client, "exports/")

	blob, err := b.Resolve(t.Context(), "datasets/latest/acme/index.json")
	require.NoError(t, err)

	assert.Equal(t, "datasets/latest/acme/index.json", blob.Name())
	assert.Equal(t, "exports/datasets/latest/acme/index.json", blob.(*Blob).Key())
	assert.Equal(t, int64(15), blob.Attrs().Size)
	assert.NotEmpty(t, blob.Attrs().ETag)
	assert.False(t, blob.Attrs().Updated.IsZero())
}

func TestResolve_InvalidKey(t *testing.T) {
	client := NewMockS3Client()
	b := newTestBackend(t, client, "")

	for _, key := range []string{"", ".", "..", "../escape", "/"} {
		_, err := b.Resolve(t.Context(), key)
		assert.ErrorIs(t, err, backfill.ErrInvalidPath, "key %q", key)
	}
	assert.Zero(t, client.HeadObjectCalls)
}

func TestResolve_BackendErrorIsNotAbsence(t *testing.T) {
	for _, code := range []string{"AccessDenied", "NoSuchBucket", "InternalError"} {
		t.Run(code, func(t *testing.T) {
			client := NewMockS3Client()
			client.HeadObjectErr = NewAPIError(code, code)
			b := newTestBackend(t, client, "")

			_, err := b.Resolve(t.Context(), "datasets/latest/acme/index.json")
			require.Error(t, err)
			assert.False(t, errors.Is(err, backfill.ErrNotFound))
		})
	}
}

func TestResolve_NotFoundCodes(t *testing.T) {
	for _, code := range []string{"NotFound", "NoSuchKey", "404"} {
		t.Run(code, func(t *testing.T) {
			client := NewMockS3Client()
			client.HeadObjectErr = NewAPIError(code, code)
			b := newTestBackend(t, client, "")

			_, err := b.Resolve(t.Context(), "datasets/latest/acme/index.json")
			require.ErrorIs(t, err, backfill.ErrNotFound)
		})
	}
}

// -----------------------------------------------------------------------------
// Blob
// -----------------------------------------------------------------------------

func TestBlob_RefreshPicksUpNewGeneration(t *testing.T) {
	client := NewMockS3Client()
	client.Put("datasets/latest/acme/index.json", []byte("v1"))
	b := newTestBackend(t, client, "")

	blob, err := b.Resolve(t.Context(), "datasets/latest/acme/index.json")
	require.NoError(t, err)
	first := blob.Attrs().ETag

	client.Put("datasets/latest/acme/index.json", []byte("version two"))
	require.NoError(t, blob.Refresh(t.Context()))
	assert.NotEqual(t, first, blob.Attrs().ETag)
	assert.Equal(t, int64(len("version two")), blob.Attrs().Size)

	rc, err := blob.Open(t.Context(), 4)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "version two", string(data))
	assert.Zero(t, client.OpenBodies())
}

func TestBlob_OpenFailsWhenObjectChanged(t *testing.T) {
	client := NewMockS3Client()
	client.Put("datasets/latest/acme/statements.pack", []byte("v1"))
	b := newTestBackend(t, client, "")

	blob, err := b.Resolve(t.Context(), "datasets/latest/acme/statements.pack")
	require.NoError(t, err)

	client.Put("datasets/latest/acme/statements.pack", []byte("v2 longer"))
	_, err = blob.Open(t.Context(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "changed since refresh")
	assert.Zero(t, client.OpenBodies())
}

func TestBlob_Download(t *testing.T) {
	client := NewMockS3Client()
	content := []byte(`{"resources":[]}`)
	client.Put("datasets/latest/acme/resources.json", content)
	b := newTestBackend(t, client, "")

	blob, err := b.Resolve(t.Context(), "datasets/latest/acme/resources.json")
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "acme", "resources.json")
	require.NoError(t, blob.Download(t.Context(), dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, 1, client.GetObjectCalls)
	assert.Zero(t, client.OpenBodies())
}

func TestBlob_DownloadDeletedObject(t *testing.T) {
	client := NewMockS3Client()
	client.Put("datasets/latest/acme/resources.json", []byte("{}"))
	b := newTestBackend(t, client, "")

	blob, err := b.Resolve(t.Context(), "datasets/latest/acme/resources.json")
	require.NoError(t, err)

	client.mu.Lock()
	delete(client.objects, "datasets/latest/acme/resources.json")
	client.mu.Unlock()

	dst := filepath.Join(t.TempDir(), "resources.json")
	err = blob.Download(t.Context(), dst)
	require.ErrorIs(t, err, backfill.ErrNotFound)
	assert.NoFileExists(t, dst)
}

// -----------------------------------------------------------------------------
// Factory
// -----------------------------------------------------------------------------

func TestFactory_BuildsBackend(t *testing.T) {
	factory := Factory(ClientConfig{
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		UsePathStyle:    true,
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
	}, "exports", nil)

	backend, err := factory(t.Context(), "archive")
	require.NoError(t, err)

	b, ok := backend.(*Backend)
	require.True(t, ok)
	assert.Equal(t, "archive", b.Bucket())
	assert.Equal(t, "exports/", b.prefix)
}

func TestFactory_MissingRegionIsConfigurationError(t *testing.T) {
	_, err := Factory(ClientConfig{}, "", nil)(t.Context(), "archive")

	var cfgErr *backfill.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "no S3 region configured", cfgErr.Message)
}
