package domain

import (
	"errors"
	"io"
	"strings"
	"time"
)

// AllowedAttachmentExtensions is the allow-list of attachment file types
var AllowedAttachmentExtensions = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// NormalizeExtension lowercases an extension and strips a leading dot
func NormalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ContentTypeFor returns the content type of an allowed extension
func ContentTypeFor(ext string) (string, bool) {
	contentType, ok := AllowedAttachmentExtensions[NormalizeExtension(ext)]
	return contentType, ok
}

// ObjectInfo describes a stored attachment object
type ObjectInfo struct {
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
}

// Upload is an attachment received from a client
type Upload struct {
	FileName string
	Size     int64
	Reader   io.Reader
}

// ErrObjectNotFound is returned by attachment storage for a missing object
var ErrObjectNotFound = errors.New("object not found")
