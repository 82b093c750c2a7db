package constants

import "strings"

// FileFormat is the coarse document kind an illustration arrives as.
type FileFormat string

const (
	FormatPDF   FileFormat = "PDF"
	FormatImage FileFormat = "IMAGE"
	FormatHTML  FileFormat = "HTML"
	FormatTXT   FileFormat = "TXT"
)

// FileTypes lists every supported format.
var FileTypes = []FileFormat{FormatPDF, FormatImage, FormatHTML, FormatTXT}

// AllowedExtensions holds the default allowed file extensions for illustration ingestion.
var AllowedExtensions = map[string]FileFormat{
	"pdf":  FormatPDF,
	"png":  FormatImage,
	"jpg":  FormatImage,
	"jpeg": FormatImage,
	"tif":  FormatImage,
	"tiff": FormatImage,
	"heic": FormatImage,
	"html": FormatHTML,
	"htm":  FormatHTML,
	"txt":  FormatTXT,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// MapExtToFormat resolves an extension (with or without the dot) to its format.
func MapExtToFormat(ext string) (FileFormat, bool) {
	f, ok := AllowedExtensions[NormalizeExt(ext)]
	return f, ok
}

// IsAllowedExt reports whether files with ext are picked up by ingestion.
func IsAllowedExt(ext string) bool {
	_, ok := MapExtToFormat(ext)
	return ok
}
