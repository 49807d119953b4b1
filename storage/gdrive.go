package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// GoogleDriveProvider is read-only access to a Google Drive library. It is
// used as the destination scope when checking what an import would add.
type GoogleDriveProvider struct {
	service   *drive.Service
	tokenFile string
}

// NewGoogleDriveProvider creates a new Google Drive provider. On first use
// the OAuth consent flow runs in the terminal and the token is cached.
func NewGoogleDriveProvider(ctx context.Context, credentialsFile, tokenFile string) (*GoogleDriveProvider, error) {
	tokenFile = expandHome(tokenFile)
	credentialsFile = expandHome(credentialsFile)

	credBytes, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(credBytes, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	token, err := loadToken(tokenFile)
	if err != nil {
		token, err = getTokenFromWeb(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("failed to get token: %w", err)
		}
		if err := saveToken(tokenFile, token); err != nil {
			return nil, fmt.Errorf("failed to save token: %w", err)
		}
	}

	service, err := drive.NewService(ctx, option.WithTokenSource(config.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	return &GoogleDriveProvider{
		service:   service,
		tokenFile: tokenFile,
	}, nil
}

// ListFiles lists all files in a folder given as a slash-separated path from
// the Drive root.
func (p *GoogleDriveProvider) ListFiles(ctx context.Context, dir string, recursive bool) ([]FileInfo, error) {
	folderID, err := p.getFolderID(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to find folder: %w", err)
	}

	var files []FileInfo
	if err := p.listFilesRecursive(ctx, folderID, dir, recursive, &files); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

func (p *GoogleDriveProvider) listFilesRecursive(ctx context.Context, folderID, currentPath string, recursive bool, files *[]FileInfo) error {
	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))

	pageToken := ""
	for {
		result, err := p.service.Files.List().
			Context(ctx).
			Q(query).
			Fields("nextPageToken, files(id, name, size, modifiedTime, mimeType, parents)").
			PageToken(pageToken).
			Do()
		if err != nil {
			return fmt.Errorf("failed to list files: %w", err)
		}

		for _, file := range result.Files {
			info := driveFileInfo(file, currentPath)
			*files = append(*files, info)

			if recursive && info.IsDir {
				if err := p.listFilesRecursive(ctx, file.Id, info.Path, recursive, files); err != nil {
					return err
				}
			}
		}

		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}
	return nil
}

func driveFileInfo(file *drive.File, parent string) FileInfo {
	info := FileInfo{
		ID:       file.Id,
		Name:     file.Name,
		Path:     path.Join(parent, file.Name),
		Size:     file.Size,
		IsDir:    file.MimeType == folderMimeType,
		MimeType: file.MimeType,
	}
	if file.ModifiedTime != "" {
		if t, err := parseDriveTime(file.ModifiedTime); err == nil {
			info.ModTime = t
		}
	}
	return info
}

// getFolderID resolves a slash-separated folder path from the Drive root.
func (p *GoogleDriveProvider) getFolderID(ctx context.Context, dir string) (string, error) {
	parentID := "root"
	for _, part := range splitDrivePath(dir) {
		query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
			escapeQuery(part), escapeQuery(parentID), folderMimeType)

		result, err := p.service.Files.List().Context(ctx).Q(query).Fields("files(id)").Do()
		if err != nil {
			return "", fmt.Errorf("failed to find folder %s: %w", part, err)
		}
		if len(result.Files) == 0 {
			return "", fmt.Errorf("folder not found: %s", part)
		}
		parentID = result.Files[0].Id
	}
	return parentID, nil
}

// OpenFile downloads a file's content
func (p *GoogleDriveProvider) OpenFile(ctx context.Context, id string) (Reader, error) {
	resp, err := p.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	return resp.Body, nil
}

// Name returns the provider name
func (p *GoogleDriveProvider) Name() string {
	return string(ProviderGoogleDrive)
}

// Close cleans up provider resources
func (p *GoogleDriveProvider) Close() error {
	return nil
}

// Helper functions

func splitDrivePath(dir string) []string {
	var parts []string
	for _, part := range strings.Split(dir, "/") {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	return parts
}

// parseDriveTime reads the RFC 3339 timestamps the Drive API returns.
func parseDriveTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// escapeQuery quotes a value for use inside a Drive query string literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, p[2:])
	}
	return p
}

func loadToken(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(file string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}

func getTokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)

	fmt.Fprintf(os.Stderr, "\nGo to the following link in your browser:\n%s\n\n", authURL)
	fmt.Fprint(os.Stderr, "Enter authorization code: ")

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	return token, nil
}

// Ensure GoogleDriveProvider implements Provider interface
var _ Provider = (*GoogleDriveProvider)(nil)
