// Package storage keeps owner exports and database backups in MinIO.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bowerhall/tiermem/internal/logger"
)

type Client struct {
	mc           *minio.Client
	exportBucket string
	backupBucket string
}

type Config struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	ExportBucket string
	BackupBucket string
}

func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	c := &Client{
		mc:           mc,
		exportBucket: cfg.ExportBucket,
		backupBucket: cfg.BackupBucket,
	}
	if c.exportBucket == "" {
		c.exportBucket = "tiermem-exports"
	}
	if c.backupBucket == "" {
		c.backupBucket = "tiermem-backups"
	}

	return c, nil
}

// Init creates required buckets if they don't exist
func (c *Client) Init(ctx context.Context) error {
	for _, bucket := range []string{c.exportBucket, c.backupBucket} {
		exists, err := c.mc.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}

		if !exists {
			if err := c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
			logger.Info("bucket created", "bucket", bucket)
		}
	}

	return nil
}

type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

func (c *Client) Upload(ctx context.Context, bucket, name string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := c.mc.PutObject(ctx, bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, name, err)
	}

	logger.Debug("file uploaded", "bucket", bucket, "name", name, "size", len(data))
	return nil
}

func (c *Client) Download(ctx context.Context, bucket, name string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, name, err)
	}

	return data, nil
}

func (c *Client) List(ctx context.Context, bucket, prefix string) ([]FileInfo, error) {
	var files []FileInfo

	for obj := range c.mc.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", bucket, obj.Err)
		}
		files = append(files, FileInfo{Name: obj.Key, Size: obj.Size, ModTime: obj.LastModified})
	}

	return files, nil
}

func (c *Client) Delete(ctx context.Context, bucket, name string) error {
	if err := c.mc.RemoveObject(ctx, bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, name, err)
	}
	return nil
}

// UploadExport stores an owner export as JSON and returns its object name.
func (c *Client) UploadExport(ctx context.Context, ownerID string, export any) (string, error) {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}

	name := ExportObjectName(ownerID, time.Now())
	if err := c.Upload(ctx, c.exportBucket, name, data, "application/json"); err != nil {
		return "", err
	}

	logger.Info("owner export uploaded", "owner", ownerID, "object", name)
	return name, nil
}

// DeleteExports removes every stored export for an owner.
func (c *Client) DeleteExports(ctx context.Context, ownerID string) (int, error) {
	files, err := c.List(ctx, c.exportBucket, ownerPrefix(ownerID))
	if err != nil {
		return 0, err
	}

	for _, f := range files {
		if err := c.Delete(ctx, c.exportBucket, f.Name); err != nil {
			return 0, err
		}
	}
	return len(files), nil
}

// UploadBackup uploads a database file produced by Store.Backup.
func (c *Client) UploadBackup(ctx context.Context, file string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read backup: %w", err)
	}

	name := BackupObjectName(time.Now())
	if err := c.Upload(ctx, c.backupBucket, name, data, "application/vnd.sqlite3"); err != nil {
		return "", err
	}

	logger.Info("database backup uploaded", "object", name, "size", len(data))
	return name, nil
}

// Backups lists uploaded database backups, oldest first.
func (c *Client) Backups(ctx context.Context) ([]FileInfo, error) {
	files, err := c.List(ctx, c.backupBucket, "")
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// DownloadBackup writes a backup object to dest. It refuses to overwrite an
// existing file.
func (c *Client) DownloadBackup(ctx context.Context, name, dest string) error {
	data, err := c.Download(ctx, c.backupBucket, name)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}

	logger.Info("database backup downloaded", "object", name, "path", dest, "size", len(data))
	return nil
}

func (c *Client) ExportBucket() string { return c.exportBucket }
func (c *Client) BackupBucket() string { return c.backupBucket }

// Healthy checks if MinIO is reachable
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.mc.BucketExists(ctx, c.exportBucket)
	return err == nil
}

func ownerPrefix(ownerID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(ownerID)
	return safe + "/"
}

// ExportObjectName is <owner>/<timestamp>-<id>.json with path separators in
// the owner id replaced.
func ExportObjectName(ownerID string, at time.Time) string {
	return path.Join(ownerPrefix(ownerID), fmt.Sprintf("%s-%s.json", at.UTC().Format("20060102T150405Z"), uuid.NewString()[:8]))
}

func BackupObjectName(at time.Time) string {
	return path.Join(at.UTC().Format("2006/01/02"), fmt.Sprintf("tiermem-%s.db", at.UTC().Format("150405")))
}
