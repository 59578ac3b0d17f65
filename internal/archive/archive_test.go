package archive

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintbook/internal/config"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Method != http.MethodPut {
		return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	body, _ := io.ReadAll(req.Body)
	key := strings.TrimPrefix(req.URL.Path, "/")
	f.objects[key] = body
	f.types[key] = req.Header.Get("Content-Type")
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"ETag": {"\"etag\""}}}, nil
}

func newFakeS3(t *testing.T) (*S3, *fakeS3) {
	t.Helper()
	rt := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return NewS3FromClient(client, "archive"), rt
}

func TestKey(t *testing.T) {
	assert.Equal(t, "quarters/Q1-2025/temps.csv", Key("/quarters/", "Q1/2025", "temps.csv"))
	assert.Equal(t, "a.csv", Key("", "", "a.csv"))
}

func TestFSPut(t *testing.T) {
	dir := t.TempDir()
	store := FS{Dir: dir}
	loc, err := store.Put(context.Background(), "quarters/q1/temps.csv", []byte("tribe\nA\n"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "quarters", "q1", "temps.csv"), loc)
	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "tribe\nA\n", string(data))

	_, err = store.Put(context.Background(), "quarters/q1/temps.csv", []byte("x"), "")
	assert.Error(t, err)
	_, err = store.Put(context.Background(), "../escape", []byte("x"), "")
	assert.Error(t, err)
}

func TestS3Put(t *testing.T) {
	store, rt := newFakeS3(t)
	loc, err := store.Put(context.Background(), "quarters/q1/temps.csv", []byte("tribe,app\nA,Payments\n"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "s3://archive/quarters/q1/temps.csv", loc)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	body, ok := rt.objects["archive/quarters/q1/temps.csv"]
	require.True(t, ok)
	assert.Contains(t, string(body), "A,Payments")
	assert.Equal(t, "text/csv", rt.types["archive/quarters/q1/temps.csv"])
}

func TestOpen(t *testing.T) {
	store, err := Open(context.Background(), config.ArchiveConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, FS{}, store)

	_, err = Open(context.Background(), config.ArchiveConfig{Driver: "s3"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.ArchiveConfig{Driver: "ftp"})
	assert.Error(t, err)
}
