package imagerelay

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors
var (
	ErrEmptyPrompt        = errors.New("prompt cannot be empty")
	ErrEmptyImageData     = errors.New("image data cannot be empty")
	ErrInvalidMIMEType    = errors.New("invalid or unsupported MIME type")
	ErrImageTooLarge      = errors.New("image data exceeds maximum size")
	ErrImageNotAccepted   = errors.New("provider does not accept images")
	ErrTextOnlyNotAllowed = errors.New("provider requires an image")
	ErrUndecodableImage   = errors.New("image data could not be decoded")
)

// MaxImageSize is the maximum allowed image size in bytes (20MB)
const MaxImageSize = 20 * 1024 * 1024

// ValidMIMETypes contains the supported image MIME types
var ValidMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// IsValidationError reports whether err is one of the validation errors above.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrEmptyPrompt, ErrEmptyImageData, ErrInvalidMIMEType,
		ErrImageTooLarge, ErrImageNotAccepted, ErrTextOnlyNotAllowed,
		ErrUndecodableImage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ValidatePrompt validates a text prompt.
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// ValidateInputImage validates an input image.
func ValidateInputImage(img InputImage) error {
	if len(img.Data) == 0 {
		return ErrEmptyImageData
	}

	if len(img.Data) > MaxImageSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrImageTooLarge, len(img.Data), MaxImageSize)
	}

	if img.MIMEType == "" {
		return fmt.Errorf("%w: MIME type is required", ErrInvalidMIMEType)
	}

	if !ValidMIMETypes[img.MIMEType] {
		return fmt.Errorf("%w: %s", ErrInvalidMIMEType, img.MIMEType)
	}

	return nil
}

// ValidateDescriptionRequest checks a request against what a provider accepts.
// A request with an image but no prompt is valid; providers fall back to
// DefaultImagePrompt.
func ValidateDescriptionRequest(req DescriptionRequest, info ProviderInfo) error {
	if req.Image != nil {
		if !info.AcceptsImage {
			return fmt.Errorf("%w: %s", ErrImageNotAccepted, info.Name)
		}
		return ValidateInputImage(*req.Image)
	}

	if !info.AcceptsText {
		return fmt.Errorf("%w: %s", ErrTextOnlyNotAllowed, info.Name)
	}
	return ValidatePrompt(req.Prompt)
}

// PromptOrDefault returns the request prompt, or DefaultImagePrompt for an
// image request without one.
func (r DescriptionRequest) PromptOrDefault() string {
	if strings.TrimSpace(r.Prompt) == "" && r.HasImage() {
		return DefaultImagePrompt
	}
	return r.Prompt
}
