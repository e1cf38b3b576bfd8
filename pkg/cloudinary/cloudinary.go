package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Archive stores evaluation reports as raw Cloudinary assets.
type Archive struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary archive.
func New(cfg Config, logger zerolog.Logger) (*Archive, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Archive{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary_archive").Logger(),
	}, nil
}

// Upload stores the blob under name and returns its secure URL. Raw assets keep their
// extension in the public id, and re-archiving the same name replaces the previous copy.
func (a *Archive) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	publicID := PublicID(name)

	result, err := a.client.Upload.Upload(ctx, reader, uploader.UploadParams{
		Folder:       a.folder,
		PublicID:     publicID,
		ResourceType: "raw",
		Overwrite:    api.Bool(true),
		Tags:         []string{"autograder", "report"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload report: %s", result.Error.Message)
	}

	a.logger.Info().Str("public_id", result.PublicID).Msg("report archived to cloudinary")
	return result.SecureURL, nil
}

// PublicID maps an archive name onto the characters Cloudinary accepts.
func PublicID(name string) string {
	base := path.Base(strings.TrimSpace(name))
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, base)

	cleaned = strings.Trim(cleaned, "-.")
	if cleaned == "" {
		return "report.json"
	}
	return cleaned
}
