package core

import (
	"mime"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var imagePathPattern = regexp.MustCompile(`(?i)\.(gif|jpe?g|tiff?|png|webp|bmp|heic)$`)

// preferredExtensions pins the extension for content types that mime
// resolves to several candidates.
var preferredExtensions = map[string]string{
	"image/jpeg":      "jpeg",
	"image/png":       "png",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"image/heic":      "heic",
	"image/tiff":      "tiff",
	"image/bmp":       "bmp",
	"application/pdf": "pdf",
	"text/plain":      "txt",
	"text/csv":        "csv",
}

// NewAttachmentPath builds a fresh storage path for an upload owned by userID:
// {user_id}/{random_token}.{original_extension}.
func NewAttachmentPath(userID, filename string) string {
	p := userID + "/" + uuid.NewString()
	if ext := FileExtension(filename); ext != "" {
		p += "." + ext
	}
	return p
}

// FileExtension returns the lowercased extension of name without the dot.
func FileExtension(name string) string {
	ext := strings.TrimPrefix(path.Ext(strings.TrimSpace(name)), ".")
	return strings.ToLower(ext)
}

// NormalizeAttachment maps blank form values to the "no attachment" sentinel.
func NormalizeAttachment(p string) string {
	return strings.TrimSpace(p)
}

// AttachmentOwnedBy reports whether p lives under the user's path prefix.
func AttachmentOwnedBy(p, userID string) bool {
	if userID == "" || strings.Contains(p, "..") {
		return false
	}
	return strings.HasPrefix(p, userID+"/")
}

// UserPrefix is the storage prefix holding every blob of a user.
func UserPrefix(userID string) string {
	return userID + "/"
}

// IsImagePath reports whether the stored path looks like an image.
func IsImagePath(p string) bool {
	return imagePathPattern.MatchString(p)
}

// ExtensionForContentType guesses a file extension from a blob content type,
// falling back to the extension of the stored path. It returns "" when
// neither gives one.
func ExtensionForContentType(contentType, storedPath string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		if ext, ok := preferredExtensions[mediaType]; ok {
			return ext
		}
		if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
			return strings.TrimPrefix(exts[0], ".")
		}
	}
	return FileExtension(storedPath)
}
