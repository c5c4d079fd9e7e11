// Package upload pushes session artifacts (analysis documents, transcript
// text, metadata) to a Google Drive folder. Markdown converts to Google
// Docs unless raw mode is requested.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/meetscribe/meetscribe/config"
	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/paths"
)

// googleDocMime converts an uploaded file into a native Google Doc.
const googleDocMime = "application/vnd.google-apps.document"

// uploadConcurrency bounds parallel Drive calls.
const uploadConcurrency = 3

// Result describes one uploaded artifact.
type Result struct {
	LocalPath string
	Name      string
	MimeType  string
	FileID    string
}

// createFunc performs one file creation. Split out so tests can run the
// full upload flow without a Drive backend.
type createFunc func(ctx context.Context, name, localPath, srcMime, destMime string) (string, error)

// Uploader sends a session folder's artifacts to the configured Drive
// folder.
type Uploader struct {
	cfg    config.GDrive
	create createFunc // nil means real Drive
}

// New creates an Uploader from the gdrive config section.
func New(cfg config.GDrive) *Uploader {
	return &Uploader{cfg: cfg}
}

// Upload pushes the folder's artifacts and returns a result per file. With
// raw set, markdown files upload verbatim instead of converting to Google
// Docs.
func (u *Uploader) Upload(ctx context.Context, folder string, raw bool) ([]Result, error) {
	log := logger.WithComponent("upload")

	if !u.cfg.Enabled {
		return nil, fmt.Errorf("gdrive upload is not enabled (set gdrive.enabled)")
	}
	if u.cfg.FolderID == "" {
		return nil, fmt.Errorf("gdrive.folder_id is not configured")
	}

	artifacts, err := collectArtifacts(folder)
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("no uploadable artifacts in %s", folder)
	}

	create := u.create
	if create == nil {
		svc, err := u.connect(ctx)
		if err != nil {
			return nil, err
		}
		create = func(ctx context.Context, name, localPath, srcMime, destMime string) (string, error) {
			return driveCreate(ctx, svc, u.cfg.FolderID, name, localPath, srcMime, destMime)
		}
	}

	results := make([]Result, len(artifacts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for i, path := range artifacts {
		i, path := i, path
		g.Go(func() error {
			name, srcMime, destMime := targetFor(path, raw)
			id, err := create(gctx, name, path, srcMime, destMime)
			if err != nil {
				return fmt.Errorf("failed to upload %s: %w", filepath.Base(path), err)
			}
			mime := destMime
			if mime == "" {
				mime = srcMime
			}
			results[i] = Result{LocalPath: path, Name: name, MimeType: mime, FileID: id}
			log.Info("uploaded", "name", name, "mime", mime)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// collectArtifacts gathers the folder's uploadable files: analysis
// documents, transcript text, and the metadata document, in a stable order.
func collectArtifacts(folder string) ([]string, error) {
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("session folder not found: %s", folder)
	}

	var artifacts []string
	for _, pattern := range []string{
		"analysis_*.md",
		"*_metadata.json",
		filepath.Join("*_transcript", "*.txt"),
	} {
		matches, err := filepath.Glob(filepath.Join(folder, pattern))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		artifacts = append(artifacts, matches...)
	}
	return artifacts, nil
}

// targetFor maps a local artifact to its Drive name and mime types. An
// empty destination mime means no conversion.
func targetFor(path string, raw bool) (name, srcMime, destMime string) {
	name = filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md":
		srcMime = "text/markdown"
		if !raw {
			destMime = googleDocMime
			name = strings.TrimSuffix(name, ".md")
		}
	case ".txt":
		srcMime = "text/plain"
	case ".json":
		srcMime = "application/json"
	default:
		srcMime = "application/octet-stream"
	}
	return name, srcMime, destMime
}

// connect builds the Drive service: a service-account credentials file when
// configured, otherwise an OAuth client file with a cached token.
func (u *Uploader) connect(ctx context.Context) (*drive.Service, error) {
	if u.cfg.CredentialsFile != "" {
		svc, err := drive.NewService(ctx,
			option.WithCredentialsFile(paths.Expand(u.cfg.CredentialsFile)),
			option.WithScopes(drive.DriveFileScope))
		if err != nil {
			return nil, fmt.Errorf("failed to create drive client: %w", err)
		}
		return svc, nil
	}

	if u.cfg.OAuthClientFile == "" {
		return nil, fmt.Errorf("gdrive credentials not configured (set gdrive.credentials_file or gdrive.oauth_client_file)")
	}

	clientData, err := os.ReadFile(paths.Expand(u.cfg.OAuthClientFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth client file: %w", err)
	}
	conf, err := google.ConfigFromJSON(clientData, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("invalid oauth client file: %w", err)
	}

	tokenPath := u.cfg.TokenFile
	if tokenPath == "" {
		tokenPath, err = paths.GDriveTokenPath()
		if err != nil {
			return nil, err
		}
	}
	tokenData, err := os.ReadFile(paths.Expand(tokenPath))
	if err != nil {
		return nil, fmt.Errorf("no cached gdrive token at %s: %w", tokenPath, err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("invalid gdrive token file: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return svc, nil
}

// driveCreate uploads one file, converting when a destination mime is set.
func driveCreate(ctx context.Context, svc *drive.Service, folderID, name, localPath, srcMime, destMime string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	meta := &drive.File{
		Name:    name,
		Parents: []string{folderID},
	}
	if destMime != "" {
		meta.MimeType = destMime
	}

	created, err := svc.Files.Create(meta).
		Media(f, googleapi.ContentType(srcMime)).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}
