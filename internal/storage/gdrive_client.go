package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveClient publishes project exports to Google Drive
type DriveClient struct {
	service  *drive.Service
	rootName string
	rootID   string
}

// DriveFile is one export artifact to upload.
type DriveFile struct {
	Name     string
	MimeType string
	Data     []byte
}

// NewDriveClient creates a Drive client from OAuth client credentials and a
// previously authorized token file.
func NewDriveClient(ctx context.Context, credentialsFile, tokenFile, folderName string) (*DriveClient, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("no usable token in %s (authorize at %s): %w",
			tokenFile, config.AuthCodeURL("state-token", oauth2.AccessTypeOffline), err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	dc := &DriveClient{
		service:  srv,
		rootName: folderName,
	}

	dc.rootID, err = dc.findOrCreateFolder(ctx, folderName, "")
	if err != nil {
		return nil, fmt.Errorf("unable to prepare folder %q: %w", folderName, err)
	}

	return dc, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("token file has no access or refresh token")
	}
	return tok, nil
}

// UploadExport creates a folder for the project under the root folder and
// uploads the given files into it. It returns the folder's web link.
func (dc *DriveClient) UploadExport(ctx context.Context, folderName string, files []DriveFile) (string, error) {
	folderID, err := dc.findOrCreateFolder(ctx, folderName, dc.rootID)
	if err != nil {
		return "", err
	}

	for _, f := range files {
		meta := &drive.File{
			Name:     f.Name,
			MimeType: f.MimeType,
			Parents:  []string{folderID},
		}
		if _, err := dc.service.Files.Create(meta).Media(bytes.NewReader(f.Data)).Context(ctx).Do(); err != nil {
			return "", fmt.Errorf("failed to upload %s: %w", f.Name, err)
		}
	}

	return fmt.Sprintf("https://drive.google.com/drive/folders/%s", folderID), nil
}

// findOrCreateFolder finds or creates a folder; an empty parentID means "My Drive".
func (dc *DriveClient) findOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false",
		escapeQuery(name), folderMimeType)
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", parentID)
	}

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to search for folder: %w", err)
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}

	file, err := dc.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create folder: %w", err)
	}
	return file.Id, nil
}

// escapeQuery escapes a value for a Drive query string literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
