package cloudinary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName  string
	APIKey     string
	APISecret  string
	RootFolder string
}

// StoredFile describes an uploaded blob.
type StoredFile struct {
	ID      string
	URL     string
	Size    int64
	Created time.Time
}

// Service is the Cloudinary-backed blob storage gateway used for submission
// files and per-assignment folders.
type Service struct {
	client     *cloudinary.Cloudinary
	httpClient *http.Client
	rootFolder string
	logger     zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client:     cld,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		rootFolder: strings.Trim(cfg.RootFolder, "/"),
		logger:     logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// EnsureFolder creates the folder under the given parent if it does not
// already exist and returns its path. Creating an existing folder is a no-op
// on the Cloudinary side.
func (s *Service) EnsureFolder(ctx context.Context, name, parent string) (string, error) {
	path := folderPath(s.rootFolder, parent, name)

	if _, err := s.client.Admin.CreateFolder(ctx, admin.CreateFolderParams{Folder: path}); err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", path, err)
	}

	s.logger.Info().Str("folder", path).Msg("storage folder ensured")

	return path, nil
}

// Upload sends the file into the given folder and returns its identifier and
// a view link. Submission artifacts are stored as raw assets so their bytes
// round-trip unchanged.
func (s *Service) Upload(ctx context.Context, reader io.Reader, name, folder string) (StoredFile, error) {
	if folder == "" {
		folder = s.rootFolder
	}

	params := uploader.UploadParams{
		Folder:       strings.Trim(folder, "/"),
		PublicID:     buildPublicID(name),
		ResourceType: "raw",
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to upload asset: %w", err)
	}

	s.logger.Info().Str("public_id", result.PublicID).Msg("file uploaded to cloudinary")

	return StoredFile{
		ID:      result.PublicID,
		URL:     result.SecureURL,
		Size:    int64(result.Bytes),
		Created: result.CreatedAt,
	}, nil
}

// Download streams the blob behind a previously returned view link. The
// caller owns the returned reader.
func (s *Service) Download(ctx context.Context, fileURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download asset: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d downloading asset", resp.StatusCode)
	}

	return resp.Body, nil
}

// Delete removes the blob with the given identifier.
func (s *Service) Delete(ctx context.Context, fileID string) error {
	result, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     fileID,
		ResourceType: "raw",
	})
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	if result.Result != "ok" && result.Result != "not found" {
		return fmt.Errorf("unexpected delete result: %s", result.Result)
	}

	s.logger.Info().Str("public_id", fileID).Msg("file deleted from cloudinary")

	return nil
}

func folderPath(root, parent, name string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{root, parent, name} {
		part = strings.Trim(part, "/")
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "/")
}

func buildPublicID(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("upload-%d", time.Now().Unix())
	}

	return fmt.Sprintf("%s-%d%s", base, time.Now().Unix(), ext)
}
