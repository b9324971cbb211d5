package service

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/civicpulse/civicpulse-api/pkg/errors"
	"github.com/civicpulse/civicpulse-api/pkg/storage"
)

// PhotoService decodes submitted photo payloads, persists them on disk and
// hands out signed download links. Externally hosted photo URIs pass through
// untouched.
type PhotoService struct {
	store      *storage.LocalStorage
	signer     *storage.SignedURLSigner
	maxBytes   int64
	publicPath string
	logger     *zap.Logger
}

// NewPhotoService constructs a PhotoService.
func NewPhotoService(store *storage.LocalStorage, signer *storage.SignedURLSigner, maxBytes int64, publicPath string, logger *zap.Logger) *PhotoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publicPath == "" {
		publicPath = "/photos"
	}
	return &PhotoService{store: store, signer: signer, maxBytes: maxBytes, publicPath: publicPath, logger: logger}
}

// Store persists the photo payload for a report and returns the stored name.
// Payloads may be data URIs, raw base64, or an already-hosted http(s) URI.
func (s *PhotoService) Store(reportID, payload string) (string, error) {
	if payload == "" {
		return "", nil
	}
	if strings.HasPrefix(payload, "http://") || strings.HasPrefix(payload, "https://") {
		return payload, nil
	}

	mime := "image/jpeg"
	encoded := payload
	if strings.HasPrefix(payload, "data:") {
		rest := strings.TrimPrefix(payload, "data:")
		sep := strings.Index(rest, ";base64,")
		if sep < 0 {
			return "", appErrors.Clone(appErrors.ErrValidation, "photo payload must be base64 encoded")
		}
		mime = rest[:sep]
		encoded = rest[sep+len(";base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid photo encoding")
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return "", appErrors.Clone(appErrors.ErrValidation, "photo payload too large")
	}

	name := fmt.Sprintf("%s/photo%s", reportID, extensionFor(mime))
	if _, err := s.store.Save(name, data); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrStoreWrite.Code, appErrors.ErrStoreWrite.Status, "failed to store photo")
	}
	return name, nil
}

// SignedURL returns a time-limited download link for a stored photo name.
// External URIs are returned unchanged.
func (s *PhotoService) SignedURL(reportID, name string) string {
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		return name
	}
	token, _, err := s.signer.Generate(reportID, name)
	if err != nil {
		s.logger.Warn("failed to sign photo url", zap.String("report_id", reportID), zap.Error(err))
		return ""
	}
	return fmt.Sprintf("%s?token=%s", s.publicPath, token)
}

// Delete removes a stored photo. Empty names and externally hosted URIs are
// no-ops: nothing of ours is on disk for them.
func (s *PhotoService) Delete(name string) error {
	if name == "" || strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		return nil
	}
	return s.store.Delete(name)
}

// Open validates the download token and returns a handle on the photo file.
func (s *PhotoService) Open(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired photo link")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "photo not found")
	}
	return file, mimeFor(relPath), nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

func mimeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".png"):
		return "image/png"
	case strings.HasSuffix(name, ".webp"):
		return "image/webp"
	case strings.HasSuffix(name, ".gif"):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
