package imagerelay

import (
	"context"
	"path/filepath"
	"strings"
)

// Storage persists produced images somewhere publicly reachable.
// Implementations can wrap a local directory or an object store.
type Storage interface {
	// SaveFile saves data under path and returns the public URL.
	// The path is a relative key (e.g., "outputs/2024/01/output.png").
	SaveFile(ctx context.Context, data []byte, path string, contentType string) (string, error)
}

// StorageResult contains information about a saved image.
type StorageResult struct {
	// URL is the public URL where the image can be accessed
	URL string

	// Path is the storage key where the image was saved
	Path string

	// Size is the number of bytes saved
	Size int
}

// SaveImage stores one image under basePath plus an extension matching its
// MIME type.
func SaveImage(ctx context.Context, storage Storage, data []byte, mimeType string, basePath string) (*StorageResult, error) {
	if storage == nil {
		return nil, ErrStorageNotConfigured
	}
	if len(data) == 0 {
		return nil, ErrEmptyImageData
	}
	if mimeType == "" {
		mimeType = DetectMIMEType(data)
	}

	path := basePath + "." + extensionFromMIME(mimeType)
	url, err := storage.SaveFile(ctx, data, path, mimeType)
	if err != nil {
		return nil, err
	}

	return &StorageResult{
		URL:  url,
		Path: path,
		Size: len(data),
	}, nil
}

// GetMIMEType guesses an image MIME type from a file name.
func GetMIMEType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/png"
	}
}

// extensionFromMIME returns a file extension for common image MIME types.
func extensionFromMIME(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
