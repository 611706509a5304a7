package photostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("photo not found")

// PhotoStore is object storage for sale photos, addressed by path inside a
// single bucket.
type PhotoStore interface {
	Upload(ctx context.Context, path, mimeType string, r io.Reader) error
	Remove(ctx context.Context, paths ...string) error
	SignedURL(ctx context.Context, path string, expiry time.Duration) (string, error)
}

// ObjectPath names a new sale photo object: <owner>/<sale>/<ms>-<random><ext>.
func ObjectPath(ownerID, saleID, fileName, mimeType string, now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s/%s/%d-%s%s", ownerID, saleID, now.UnixMilli(), random, Ext(fileName, mimeType))
}

// Ext returns the file name's extension, or one derived from mimeType when
// the name has none.
func Ext(fileName, mimeType string) string {
	if ext := strings.ToLower(path.Ext(fileName)); ext != "" && ext != "." {
		return ext
	}
	return MimeTypeToExt(mimeType)
}

func MimeTypeToExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func ExtToMimeType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
