package imagerelay

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// DefaultImagePrompt is used when an image is described without a prompt.
const DefaultImagePrompt = "Describe this image in detail"

// InputImage represents an image sent to a description provider.
type InputImage struct {
	// Data is the raw image bytes
	Data []byte

	// MIMEType of the image (e.g., "image/jpeg", "image/png")
	MIMEType string
}

// DescriptionRequest is the input of a single description call.
type DescriptionRequest struct {
	// Image is optional; nil means a text-only request
	Image *InputImage

	// Prompt is the instruction or text to describe
	Prompt string
}

// HasImage reports whether the request carries image data.
func (r DescriptionRequest) HasImage() bool {
	return r.Image != nil && len(r.Image.Data) > 0
}

// DescriptionResult holds the text produced by a provider. Failures are
// reported as errors, never as a partially filled result.
type DescriptionResult struct {
	Text string
}

// ImageFromBytes builds an InputImage, sniffing the MIME type if empty.
func ImageFromBytes(data []byte, mimeType string) InputImage {
	if mimeType == "" {
		mimeType = DetectMIMEType(data)
	}
	return InputImage{
		Data:     data,
		MIMEType: mimeType,
	}
}

// ImageFromBase64 decodes a base64 payload, with or without a data URL
// prefix, into an InputImage.
func ImageFromBase64(b64 string) (InputImage, error) {
	var mimeType string
	if rest, ok := strings.CutPrefix(b64, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found {
			return InputImage{}, fmt.Errorf("invalid data url")
		}
		mimeType, _, _ = strings.Cut(meta, ";")
		b64 = payload
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return InputImage{}, fmt.Errorf("invalid base64: %w", err)
	}
	return ImageFromBytes(data, mimeType), nil
}

// Base64 returns the standard base64 encoding of the image data.
func (img InputImage) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DataURL returns the image as an inline data URL.
func (img InputImage) DataURL() string {
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = DetectMIMEType(img.Data)
	}
	return "data:" + mimeType + ";base64," + img.Base64()
}

// DetectMIMEType sniffs the content type of image bytes.
func DetectMIMEType(data []byte) string {
	ct, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return ct
}
