package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

func exerciseGateway(t *testing.T, g Gateway) {
	t.Helper()
	ctx := context.Background()
	bucket := "models"
	key := "heart-stroke/model.gob"
	payload := []byte("model bytes")

	exists, err := g.Exists(ctx, bucket, key)
	if err != nil {
		t.Fatalf("Exists before upload: %v", err)
	}
	if exists {
		t.Fatal("Exists returned true before upload")
	}

	if _, err := g.Download(ctx, bucket, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Download missing object: got %v, want ErrNotFound", err)
	}

	if err := g.Upload(ctx, payload, bucket, key); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	exists, err = g.Exists(ctx, bucket, key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("Exists returned false after upload")
	}

	got, err := g.Download(ctx, bucket, key)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Download = %q, want %q", got, payload)
	}

	if err := g.Upload(ctx, []byte("v2"), bucket, key); err != nil {
		t.Fatalf("Upload overwrite: %v", err)
	}
	got, _ = g.Download(ctx, bucket, key)
	if string(got) != "v2" {
		t.Errorf("overwrite not visible, got %q", got)
	}
}

func TestLocalGateway(t *testing.T) {
	dir := t.TempDir()
	g, err := NewLocalGateway(dir)
	if err != nil {
		t.Fatalf("NewLocalGateway: %v", err)
	}
	defer g.Close()
	exerciseGateway(t, g)

	if _, err := os.Stat(filepath.Join(dir, "models", "heart-stroke", "model.gob")); err != nil {
		t.Errorf("expected object file on disk: %v", err)
	}
}

func TestLocalGatewayRejectsEscapingKeys(t *testing.T) {
	g, err := NewLocalGateway(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalGateway: %v", err)
	}
	if err := g.Upload(context.Background(), []byte("x"), "models", "../../etc/passwd"); err == nil {
		t.Error("expected error for key escaping the bucket")
	}
	if _, err := NewLocalGateway("  "); err == nil {
		t.Error("expected error for empty base path")
	}
}

func TestMemoryGateway(t *testing.T) {
	g := NewMemoryGateway()
	exerciseGateway(t, g)

	g.FailUploads = true
	if err := g.Upload(context.Background(), []byte("x"), "b", "k"); !errors.Is(err, ErrUploadRejected) {
		t.Errorf("expected ErrUploadRejected, got %v", err)
	}
	if g.UploadCalls != 3 {
		t.Errorf("UploadCalls = %d, want 3", g.UploadCalls)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()
	g, err := New(ctx, Config{Backend: "memory"})
	if err != nil {
		t.Fatalf("New(memory): %v", err)
	}
	if _, ok := g.(*MemoryGateway); !ok {
		t.Errorf("New(memory) = %T", g)
	}

	g, err = New(ctx, Config{Backend: "local", Local: LocalConfig{Path: t.TempDir()}})
	if err != nil {
		t.Fatalf("New(local): %v", err)
	}
	if _, ok := g.(*LocalGateway); !ok {
		t.Errorf("New(local) = %T", g)
	}

	if _, err := New(ctx, Config{Backend: "ftp"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

// fakeS3 is an in-memory s3API.
type fakeS3 struct {
	objects map[string][]byte
	headErr error
	putErr  error
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[*in.Bucket+"/"+*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3Gateway(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	g := &S3Gateway{client: fake, prefix: "prod"}
	exerciseGateway(t, g)

	if _, ok := fake.objects["models/prod/heart-stroke/model.gob"]; !ok {
		t.Errorf("expected prefixed key, have %v", fake.objects)
	}
}

func TestS3GatewayErrorClassification(t *testing.T) {
	ctx := context.Background()

	notFoundCode := &smithy.GenericAPIError{Code: "NotFound", Message: "missing"}
	g := &S3Gateway{client: &fakeS3{objects: map[string][]byte{}, headErr: notFoundCode}}
	exists, err := g.Exists(ctx, "b", "k")
	if err != nil || exists {
		t.Errorf("generic NotFound: exists=%v err=%v, want false/nil", exists, err)
	}

	denied := &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"}
	g = &S3Gateway{client: &fakeS3{objects: map[string][]byte{}, headErr: denied}}
	if _, err := g.Exists(ctx, "b", "k"); err == nil {
		t.Error("AccessDenied should surface as an error")
	}

	g = &S3Gateway{client: &fakeS3{objects: map[string][]byte{}, putErr: denied}}
	if err := g.Upload(ctx, []byte("x"), "b", "k"); err == nil {
		t.Error("expected put error")
	}
}
