// Package proofstore keeps payment proof files on local disk or in Aliyun OSS.
// Stored paths are opaque keys of the form <owner_id>/<uuid><ext>.
package proofstore

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidPath is returned for keys that escape the store
var ErrInvalidPath = errors.New("invalid proof path")

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// newKey builds a fresh storage key for ownerID
func newKey(ownerID uuid.UUID, contentType, filename string) string {
	ext, ok := extensions[strings.ToLower(contentType)]
	if !ok {
		ext = strings.ToLower(path.Ext(filename))
		if len(ext) > 8 {
			ext = ""
		}
	}
	return fmt.Sprintf("%s/%s%s", ownerID, uuid.New(), ext)
}

// cleanKey rejects empty, absolute and parent-relative keys
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}
