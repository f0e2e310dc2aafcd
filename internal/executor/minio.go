package executor

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

// Minio uploads natively to an S3-compatible account instead of going
// through rclone. Used for accounts of kind s3.
type Minio struct {
	account models.Account
	client  *minio.Client
}

// NewMinio builds a client for the account's configured endpoint.
func NewMinio(account models.Account) (*Minio, error) {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	opts := minio.Options{
		Creds:        credentials.NewStaticV4(account.S3.AccessKey, account.S3.SecretKey, ""),
		Secure:       true,
		Transport:    tr,
		Region:       "auto",
		BucketLookup: minio.BucketLookupAuto,
	}

	client, err := minio.New(account.S3.Endpoint, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client for %s: %v", account.ID, err)
	}
	return &Minio{account: account, client: client}, nil
}

// Run performs the command's transfers object by object, verifying the
// reported size against the plan. The ETag is the remote identifier.
func (m *Minio) Run(ctx context.Context, cmd models.Command) (*Result, error) {
	switch cmd.Op {
	case models.OpCopy:
		return m.copy(ctx, cmd)
	case models.OpDelete:
		return m.delete(ctx, cmd)
	default:
		return nil, &CommandError{AccountID: cmd.AccountID, Args: cmd.Args, Err: fmt.Errorf("unknown op %q", cmd.Op)}
	}
}

func (m *Minio) copy(ctx context.Context, cmd models.Command) (*Result, error) {
	info, err := os.Stat(cmd.Source)
	if err != nil {
		return nil, &CommandError{AccountID: cmd.AccountID, Args: cmd.Args, Err: fmt.Errorf("failed to stat source %s: %v", cmd.Source, err)}
	}

	bar := pb.New(len(cmd.Files))
	bar.Set(pb.Bytes, false)
	bar.Start()
	defer bar.Finish()

	result := &Result{}
	for _, p := range cmd.Files {
		localPath := localSourcePath(cmd.Source, info.IsDir(), p.RelPath)
		info, err := m.client.FPutObject(ctx, m.account.S3.Bucket, p.Path, localPath, minio.PutObjectOptions{})
		if err != nil {
			return nil, &CommandError{AccountID: cmd.AccountID, Args: cmd.Args, Err: fmt.Errorf("failed to upload %s: %v", p.RelPath, err)}
		}
		if info.Size != p.Size {
			return nil, &CommandError{AccountID: cmd.AccountID, Args: cmd.Args, Err: fmt.Errorf("size mismatch for %s: expected %d, got %d", p.RelPath, p.Size, info.Size)}
		}
		result.Uploaded = append(result.Uploaded, models.UploadedObject{
			Path:     p.Path,
			RemoteID: info.ETag,
			Size:     info.Size,
		})
		bar.Increment()
	}
	return result, nil
}

// localSourcePath maps a placement back to its file on disk. A file
// source is its own path; a directory source nests the relative path
// under it.
func localSourcePath(source string, sourceIsDir bool, rel string) string {
	if !sourceIsDir {
		return source
	}
	return filepath.Join(source, filepath.FromSlash(rel))
}

func (m *Minio) delete(ctx context.Context, cmd models.Command) (*Result, error) {
	for _, p := range cmd.Files {
		err := m.client.RemoveObject(ctx, m.account.S3.Bucket, p.Path, minio.RemoveObjectOptions{})
		if err != nil {
			return nil, &CommandError{AccountID: cmd.AccountID, Args: cmd.Args, Err: fmt.Errorf("failed to delete %s: %v", p.Path, err)}
		}
	}
	return &Result{}, nil
}
