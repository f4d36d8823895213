package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrDriveNotConfigured is returned when no Drive credentials are set
var ErrDriveNotConfigured = errors.New("google drive credentials not configured")

// NoteUploader copies a saved note somewhere else
type NoteUploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// DriveUploader uploads notes into a Google Drive folder
type DriveUploader struct {
	service  *drive.Service
	folderID string
}

// NewDriveUploader creates an uploader authenticated with a service account
// or authorized user JSON file
func NewDriveUploader(ctx context.Context, credentialsFile, folderID string, opts ...option.ClientOption) (*DriveUploader, error) {
	if credentialsFile == "" && len(opts) == 0 {
		return nil, ErrDriveNotConfigured
	}
	if credentialsFile != "" {
		opts = append([]option.ClientOption{
			option.WithCredentialsFile(credentialsFile),
			option.WithScopes(drive.DriveFileScope),
		}, opts...)
	}
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &DriveUploader{service: service, folderID: folderID}, nil
}

// Upload stores the file and returns its Drive id
func (d *DriveUploader) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	meta := &drive.File{Name: filepath.Base(path)}
	if d.folderID != "" {
		meta.Parents = []string{d.folderID}
	}
	created, err := d.service.Files.Create(meta).
		Media(f, googleapi.ContentType("text/markdown")).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", filepath.Base(path), err)
	}
	return created.Id, nil
}
