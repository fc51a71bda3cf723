// Package artifacts stores generated test cases and scripts in MinIO.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/config"
	"github.com/testforge/docforge/internal/domain"
)

const testCasesObject = "test_cases.json"

// Store uploads run artifacts to one bucket. Objects of a run share the
// prefix "runs/<runID>/".
type Store struct {
	client *minio.Client
	bucket string
	region string
	logger *zap.Logger
}

// New creates a MinIO-backed store. It does not contact the server; call
// EnsureBucket before the first upload.
func New(cfg config.ArtifactsConfig, logger *zap.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, bucket: cfg.Bucket, region: cfg.Region, logger: logger}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("creating bucket: %w", err)
	}
	s.logger.Info("artifact bucket created", zap.String("bucket", s.bucket))
	return nil
}

// UploadTestCases stores the cases as indented JSON and returns the object URI.
func (s *Store) UploadTestCases(ctx context.Context, runID string, cases []domain.TestCase) (string, error) {
	if cases == nil {
		cases = []domain.TestCase{}
	}
	data, err := json.MarshalIndent(cases, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding test cases: %w", err)
	}
	return s.put(ctx, ObjectKey(runID, testCasesObject), data, "application/json")
}

// UploadScripts stores each script under a distinct sanitized filename and
// returns the object URIs in input order. It stops at the first failed upload.
func (s *Store) UploadScripts(ctx context.Context, runID string, scripts []domain.GeneratedScript) ([]string, error) {
	uris := make([]string, 0, len(scripts))
	names := domain.ScriptFilenames(scripts)
	for i, script := range scripts {
		uri, err := s.put(ctx, ObjectKey(runID, names[i]), []byte(script.Source), ContentType(script.Framework))
		if err != nil {
			return uris, err
		}
		uris = append(uris, uri)
	}
	return uris, nil
}

// Download returns the content of one object of a run.
func (s *Store) Download(ctx context.Context, runID, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ObjectKey(runID, name), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting object: %w", err)
	}
	defer obj.Close()

	return io.ReadAll(obj)
}

// List returns the object names stored for a run.
func (s *Store) List(ctx context.Context, runID string) ([]string, error) {
	prefix := ObjectKey(runID, "")
	var names []string
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, object.Err
		}
		names = append(names, object.Key[len(prefix):])
	}
	return names, nil
}

func (s *Store) put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	uri := fmt.Sprintf("s3://%s/%s", s.bucket, key)
	s.logger.Debug("artifact uploaded", zap.String("uri", uri), zap.Int("bytes", len(data)))
	return uri, nil
}

// ObjectKey is the key of an artifact within its run.
func ObjectKey(runID, name string) string {
	return path.Join("runs", runID) + "/" + name
}

// ContentType is the MIME type scripts of a framework are stored with.
func ContentType(f domain.ScriptFramework) string {
	if f == domain.FrameworkPlaywrightTS {
		return "application/typescript"
	}
	return "text/x-python"
}
