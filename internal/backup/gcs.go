package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// GCSScope allows reading and writing objects.
const GCSScope = gcs.ScopeReadWrite

// GCS keeps the backup as one object in a Cloud Storage bucket. Folders
// are object name prefixes.
type GCS struct {
	bucket string
	opts   []option.ClientOption
}

// NewGCS creates a GCS remote for bucket.
func NewGCS(bucket string, opts ...option.ClientOption) *GCS {
	return &GCS{bucket: bucket, opts: opts}
}

func (g *GCS) client(ctx context.Context, accessToken string) (*gcs.Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, g.opts...)
	c, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", err)
	}
	return c, nil
}

func (g *GCS) EnsureFolder(ctx context.Context, accessToken, name string) (string, error) {
	c, err := g.client(ctx, accessToken)
	if err != nil {
		return "", err
	}
	defer c.Close()
	if _, err := c.Bucket(g.bucket).Attrs(ctx); err != nil {
		return "", err
	}
	return strings.Trim(name, "/"), nil
}

// FindFolder reports whether the bucket exists. Prefixes need no creation.
func (g *GCS) FindFolder(ctx context.Context, accessToken, name string) (string, bool, error) {
	c, err := g.client(ctx, accessToken)
	if err != nil {
		return "", false, err
	}
	defer c.Close()
	_, err = c.Bucket(g.bucket).Attrs(ctx)
	if errors.Is(err, gcs.ErrBucketNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return strings.Trim(name, "/"), true, nil
}

func (g *GCS) Find(ctx context.Context, accessToken, folderID, name string) (string, bool, error) {
	c, err := g.client(ctx, accessToken)
	if err != nil {
		return "", false, err
	}
	defer c.Close()
	obj := path.Join(folderID, name)
	_, err = c.Bucket(g.bucket).Object(obj).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return obj, true, nil
}

func (g *GCS) Upload(ctx context.Context, accessToken, folderID, fileID, name string, data []byte) (string, error) {
	c, err := g.client(ctx, accessToken)
	if err != nil {
		return "", err
	}
	defer c.Close()
	if fileID == "" {
		fileID = path.Join(folderID, name)
	}
	w := c.Bucket(g.bucket).Object(fileID).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return fileID, nil
}

func (g *GCS) Download(ctx context.Context, accessToken, fileID string) ([]byte, error) {
	c, err := g.client(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	r, err := c.Bucket(g.bucket).Object(fileID).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
