package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMIME = "application/vnd.google-apps.folder"

// DriveScope is the narrowest Drive scope that can manage app-created files.
const DriveScope = drive.DriveFileScope

// Drive keeps the backup in the user's Google Drive.
type Drive struct {
	opts []option.ClientOption
}

// NewDrive creates a Drive remote. opts are appended to every service,
// after the per-call access token.
func NewDrive(opts ...option.ClientOption) *Drive {
	return &Drive{opts: opts}
}

func (d *Drive) service(ctx context.Context, accessToken string) (*drive.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, d.opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive: new service: %w", err)
	}
	return srv, nil
}

func quote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func (d *Drive) findFolder(ctx context.Context, srv *drive.Service, name string) (string, bool, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", quote(name), folderMIME)
	list, err := srv.Files.List().Q(q).Spaces("drive").Fields("files(id, name)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", false, err
	}
	if len(list.Files) == 0 {
		return "", false, nil
	}
	return list.Files[0].Id, true, nil
}

func (d *Drive) FindFolder(ctx context.Context, accessToken, name string) (string, bool, error) {
	srv, err := d.service(ctx, accessToken)
	if err != nil {
		return "", false, err
	}
	return d.findFolder(ctx, srv, name)
}

func (d *Drive) EnsureFolder(ctx context.Context, accessToken, name string) (string, error) {
	srv, err := d.service(ctx, accessToken)
	if err != nil {
		return "", err
	}
	id, found, err := d.findFolder(ctx, srv, name)
	if err != nil || found {
		return id, err
	}
	f, err := srv.Files.Create(&drive.File{Name: name, MimeType: folderMIME}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return f.Id, nil
}

func (d *Drive) Find(ctx context.Context, accessToken, folderID, name string) (string, bool, error) {
	srv, err := d.service(ctx, accessToken)
	if err != nil {
		return "", false, err
	}
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", quote(name), quote(folderID))
	list, err := srv.Files.List().Q(q).Spaces("drive").Fields("files(id, name)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", false, err
	}
	if len(list.Files) == 0 {
		return "", false, nil
	}
	return list.Files[0].Id, true, nil
}

func (d *Drive) Upload(ctx context.Context, accessToken, folderID, fileID, name string, data []byte) (string, error) {
	srv, err := d.service(ctx, accessToken)
	if err != nil {
		return "", err
	}
	media := googleapi.ContentType("application/json")
	if fileID != "" {
		f, err := srv.Files.Update(fileID, &drive.File{}).Media(bytes.NewReader(data), media).Fields("id").Context(ctx).Do()
		if err != nil {
			return "", err
		}
		return f.Id, nil
	}
	meta := &drive.File{Name: name, Parents: []string{folderID}, MimeType: "application/json"}
	f, err := srv.Files.Create(meta).Media(bytes.NewReader(data), media).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return f.Id, nil
}

func (d *Drive) Download(ctx context.Context, accessToken, fileID string) ([]byte, error) {
	srv, err := d.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	resp, err := srv.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
