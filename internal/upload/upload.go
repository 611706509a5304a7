package upload

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

const (
	previewSize = 320

	// MaxImages is how many images one tray holds.
	MaxImages = 30
	// maxPixels bounds the canvas a staged image may declare, so decoding
	// it cannot exhaust memory.
	maxPixels = 40_000_000
)

var (
	ErrUnsupportedType = errors.New("unsupported image format")
	ErrImageTooLarge   = errors.New("image dimensions too large")
	ErrTrayFull        = errors.New("upload tray is full")
)

// allowedImageTypes is the set of MIME types accepted for uploaded photos.
// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP is detected separately because the WHATWG sniffing algorithm (and
// therefore the stdlib) does not include a WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// DetectMIME returns the sniffed MIME type and true if data is an accepted
// image format.
func DetectMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// Image is a file attached to a form but not uploaded yet.
type Image struct {
	ID       string
	FileName string
	MimeType string
	Data     []byte
	// Preview is a small JPEG, or nil when the image could not be decoded.
	Preview []byte
}

// Tray holds the staged images of one form. Every image stays in memory
// until it is removed or the tray is released.
type Tray struct {
	mu     sync.Mutex
	images []*Image
}

func NewTray() *Tray {
	return &Tray{}
}

// Add stages data under fileName and builds its preview. Images declaring
// more than maxPixels are refused, as is any image once the tray holds
// MaxImages.
func (t *Tray) Add(fileName string, data []byte) (*Image, error) {
	mimeType, ok := DetectMIME(data)
	if !ok {
		return nil, ErrUnsupportedType
	}
	if t.Len() >= MaxImages {
		return nil, ErrTrayFull
	}
	if err := checkDimensions(data); errors.Is(err, ErrImageTooLarge) {
		return nil, err
	}
	img := &Image{
		ID:       uuid.NewString(),
		FileName: fileName,
		MimeType: mimeType,
		Data:     data,
	}
	if preview, err := Thumbnail(data, previewSize); err == nil {
		img.Preview = preview
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.images) >= MaxImages {
		return nil, ErrTrayFull
	}
	t.images = append(t.images, img)
	return img, nil
}

// Remove releases a single image. It reports whether the image was staged.
func (t *Tray) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, img := range t.images {
		if img.ID == id {
			t.images = append(t.images[:i], t.images[i+1:]...)
			return true
		}
	}
	return false
}

func (t *Tray) Get(id string) (*Image, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, img := range t.images {
		if img.ID == id {
			return img, true
		}
	}
	return nil, false
}

// Images returns the staged images in the order they were added.
func (t *Tray) Images() []*Image {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Image, len(t.images))
	copy(out, t.images)
	return out
}

func (t *Tray) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.images)
}

// Release drops every staged image.
func (t *Tray) Release() {
	t.mu.Lock()
	t.images = nil
	t.mu.Unlock()
}

// checkDimensions reads only the image header and reports ErrImageTooLarge
// when the declared canvas exceeds maxPixels.
func checkDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to read image header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}

// Thumbnail decodes data and re-encodes it as a JPEG whose longest edge is
// at most maxSize pixels.
func Thumbnail(data []byte, maxSize uint) ([]byte, error) {
	if err := checkDimensions(data); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := uint(bounds.Dx())
	height := uint(bounds.Dy())

	if width > maxSize || height > maxSize {
		var newWidth, newHeight uint
		if width > height {
			newWidth = maxSize
			newHeight = uint(float64(height) * (float64(maxSize) / float64(width)))
		} else {
			newHeight = maxSize
			newWidth = uint(float64(width) * (float64(maxSize) / float64(height)))
		}
		img = resize.Resize(newWidth, newHeight, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
