// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Registry naming constants
const (
	// LabelPrefix prefixes the 1-based ordinal of every registered face
	LabelPrefix = "registered_"

	// ImageExt is the extension of every stored face image
	ImageExt = ".jpg"

	// ProbePattern is the os.CreateTemp pattern for probe images
	ProbePattern = "probe-*.jpg"
)

// Image processing constants
const (
	// MaxImageSize is the maximum dimension (width or height) of a stored image
	MaxImageSize = 1920

	// JPEGQuality is the quality used when re-encoding captured images
	JPEGQuality = 90
)

// File upload constants
const (
	// MaxUploadSize is the maximum image upload size in bytes (20MB)
	MaxUploadSize = 20 << 20

	// ImageFormField is the multipart field carrying the captured image
	ImageFormField = "image"
)
