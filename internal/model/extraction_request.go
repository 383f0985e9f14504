package model

// ImageFile is one uploaded invoice image. The HTTP layer has already
// checked MIME type, size, and batch count.
type ImageFile struct {
	FileName    string
	ContentType string
	Data        []byte
}
