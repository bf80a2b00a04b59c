package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// DefaultMimeType is used whenever a data URL carries no readable mime prefix.
const DefaultMimeType = "image/jpeg"

var (
	ErrEmptyImage  = errors.New("image is empty")
	ErrInvalidData = errors.New("invalid base64 image data")
)

var dataURLRegex = regexp.MustCompile(`^data:([^;,]+);base64,`)

// ImageAsset is an encoded image plus its mime type. The zero value is "no image".
// Assets are immutable; Bytes returns the backing slice and callers must not modify it.
type ImageAsset struct {
	data     []byte
	mimeType string
}

func New(data []byte, mimeType string) (ImageAsset, error) {
	if len(data) == 0 {
		return ImageAsset{}, ErrEmptyImage
	}
	mimeType = normalizeMime(mimeType)
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	return ImageAsset{
		data:     append([]byte(nil), data...),
		mimeType: mimeType,
	}, nil
}

// Sniff builds an asset from raw upload bytes, trusting the declared type only
// when it is specific, then falling back to content detection and finally to
// DefaultMimeType.
func Sniff(data []byte, declared string) (ImageAsset, error) {
	mimeType := normalizeMime(declared)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = normalizeMime(http.DetectContentType(data))
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = DefaultMimeType
	}
	return New(data, mimeType)
}

// ParseDataURL decodes "data:<mime>;base64,<payload>". A bare base64 payload
// is accepted and tagged as DefaultMimeType.
func ParseDataURL(value string) (ImageAsset, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return ImageAsset{}, ErrEmptyImage
	}

	mimeType := DefaultMimeType
	payload := value
	if matches := dataURLRegex.FindStringSubmatch(value); len(matches) == 2 {
		mimeType = matches[1]
		payload = value[len(matches[0]):]
	} else if strings.HasPrefix(value, "data:") {
		idx := strings.IndexByte(value, ',')
		if idx < 0 {
			return ImageAsset{}, fmt.Errorf("%w: missing payload", ErrInvalidData)
		}
		payload = value[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return ImageAsset{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return New(data, mimeType)
}

func (a ImageAsset) IsZero() bool {
	return len(a.data) == 0
}

func (a ImageAsset) Bytes() []byte {
	return a.data
}

func (a ImageAsset) MimeType() string {
	if a.mimeType == "" {
		return DefaultMimeType
	}
	return a.mimeType
}

func (a ImageAsset) Base64() string {
	return base64.StdEncoding.EncodeToString(a.data)
}

func (a ImageAsset) DataURL() string {
	if a.IsZero() {
		return ""
	}
	return fmt.Sprintf("data:%s;base64,%s", a.MimeType(), a.Base64())
}

func (a ImageAsset) Extension() string {
	switch a.MimeType() {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/heic":
		return ".heic"
	default:
		return ".jpg"
	}
}

func normalizeMime(value string) string {
	value = strings.TrimSpace(value)
	if strings.Contains(value, ";") {
		value = strings.TrimSpace(strings.SplitN(value, ";", 2)[0])
	}
	return strings.ToLower(value)
}
