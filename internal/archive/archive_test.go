package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/omniaweb/hnmigrate/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.input = input
	data, _ := io.ReadAll(input.Body)
	f.body = string(data)
	return &manager.UploadOutput{}, f.err
}

func TestLocalTarget_Store(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	target, err := NewLocalTarget(dir)
	require.NoError(t, err)

	path, err := target.Store(context.Background(), "export_2024-05-03.zip", strings.NewReader("PK"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "export_2024-05-03.zip"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is cleaned up")
}

func TestLocalTarget_InvalidName(t *testing.T) {
	target, err := NewLocalTarget(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../escape.zip", "a/b.zip", ".."} {
		t.Run(name, func(t *testing.T) {
			_, err := target.Store(context.Background(), name, strings.NewReader("x"))
			assert.Error(t, err)
		})
	}
}

func TestNewLocalTarget_RequiresDir(t *testing.T) {
	_, err := NewLocalTarget("")
	assert.Error(t, err)
}

func TestNew_Local(t *testing.T) {
	dir := t.TempDir()

	target, err := New(context.Background(), config.ArchiveConfig{}, dir, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, dir, target.String())

	other := filepath.Join(dir, "custom")
	target, err = New(context.Background(), config.ArchiveConfig{Dir: other}, dir, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, other, target.String())
}

func TestS3Target_Store(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		file     string
		wantKey  string
		wantType string
	}{
		{name: "no prefix", file: "export.zip", wantKey: "export.zip", wantType: "application/zip"},
		{name: "prefix slashes trimmed", prefix: "/site-a/", file: "session.json", wantKey: "site-a/session.json", wantType: "application/json"},
		{name: "other extension", prefix: "x", file: "dump.bin", wantKey: "x/dump.bin", wantType: "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUploader{}
			target := newS3Target("bucket", tt.prefix, up, zerolog.Nop())

			loc, err := target.Store(context.Background(), tt.file, strings.NewReader("data"))
			require.NoError(t, err)
			assert.Equal(t, "s3://bucket/"+tt.wantKey, loc)
			assert.Equal(t, "bucket", aws.ToString(up.input.Bucket))
			assert.Equal(t, tt.wantKey, aws.ToString(up.input.Key))
			assert.Equal(t, tt.wantType, aws.ToString(up.input.ContentType))
			assert.Equal(t, "data", up.body)
		})
	}
}

func TestS3Target_UploadError(t *testing.T) {
	up := &fakeUploader{err: errors.New("access denied")}
	target := newS3Target("bucket", "p", up, zerolog.Nop())

	_, err := target.Store(context.Background(), "a.zip", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p/a.zip")
	assert.Equal(t, "s3://bucket/p", target.String())
}

func TestValidateS3(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ArchiveConfig
		wantErr bool
	}{
		{name: "missing bucket", cfg: config.ArchiveConfig{}, wantErr: true},
		{name: "key without secret", cfg: config.ArchiveConfig{Bucket: "b", AccessKeyID: "k"}, wantErr: true},
		{name: "default credentials", cfg: config.ArchiveConfig{Bucket: "b"}, wantErr: false},
		{name: "static credentials", cfg: config.ArchiveConfig{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateS3(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateS3() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "", endpointURL(""))
	assert.Equal(t, "https://minio.local:9000", endpointURL("minio.local:9000/"))
	assert.Equal(t, "http://minio.local:9000", endpointURL("http://minio.local:9000"))
}
