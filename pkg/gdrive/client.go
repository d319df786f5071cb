// Package gdrive wraps the Google Drive API for candidate artifact upload:
// folder-per-candidate mirroring of the local download layout.
package gdrive

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Client performs Google Drive folder and file operations.
type Client interface {
	EnsureFolder(ctx context.Context, name, parentID string) (string, error)
	UploadFile(ctx context.Context, folderID, name, localPath string) (string, error)
}

// Option configures the client.
type Option func(*driveClient)

// WithService overrides the underlying Drive service (used in tests).
func WithService(svc *drive.Service) Option {
	return func(c *driveClient) {
		c.svc = svc
	}
}

type driveClient struct {
	svc *drive.Service
}

// New creates a Drive client authenticated with a service-account
// credentials file.
func New(ctx context.Context, credentialsPath string, opts ...Option) (Client, error) {
	c := &driveClient{}
	for _, o := range opts {
		o(c)
	}

	if c.svc == nil {
		data, err := os.ReadFile(credentialsPath)
		if err != nil {
			return nil, eris.Wrap(err, "gdrive: read credentials")
		}
		svc, err := drive.NewService(ctx,
			option.WithCredentialsJSON(data),
			option.WithScopes(drive.DriveFileScope),
		)
		if err != nil {
			return nil, eris.Wrap(err, "gdrive: create service")
		}
		c.svc = svc
	}

	return c, nil
}

// EnsureFolder returns the id of the named folder under parentID, creating
// it when missing. An empty parentID searches and creates at the root.
func (c *driveClient) EnsureFolder(ctx context.Context, name, parentID string) (string, error) {
	query := "name = '" + escapeQuery(name) + "' and mimeType = '" + folderMimeType + "' and trashed = false"
	if parentID != "" {
		query += " and '" + parentID + "' in parents"
	}

	list, err := c.svc.Files.List().
		Q(query).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).Do()
	if err != nil {
		return "", eris.Wrapf(err, "gdrive: search folder %q", name)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	meta := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
	}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	created, err := c.svc.Files.Create(meta).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", eris.Wrapf(err, "gdrive: create folder %q", name)
	}
	return created.Id, nil
}

// UploadFile uploads a local file into the given folder and returns the
// created file id.
func (c *driveClient) UploadFile(ctx context.Context, folderID, name, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", eris.Wrapf(err, "gdrive: open %s", localPath)
	}
	defer f.Close() //nolint:errcheck

	meta := &drive.File{
		Name:    name,
		Parents: []string{folderID},
	}
	created, err := c.svc.Files.Create(meta).
		Media(f).
		Fields("id").
		Context(ctx).Do()
	if err != nil {
		return "", eris.Wrapf(err, "gdrive: upload %q", name)
	}
	return created.Id, nil
}

// escapeQuery escapes single quotes inside a Drive query string literal.
func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
