package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Document types accepted as invoice evidence
const (
	DocumentPDF  = "PDF"
	DocumentJPEG = "JPEG"
	DocumentPNG  = "PNG"
)

// ValidationResult contains the results of document validation
type ValidationResult struct {
	Valid        bool     `json:"valid"`
	DetectedType string   `json:"detected_type,omitempty"`
	ContentType  string   `json:"content_type"`
	Size         int64    `json:"size"`
	Errors       []string `json:"errors"`
}

// DocumentValidator checks invoice documents before they are attached to a transaction
type DocumentValidator struct {
	maxSizeBytes int64
}

var documentMagicBytes = []struct {
	kind  string
	magic []byte
}{
	{DocumentPDF, []byte("%PDF")},
	{DocumentJPEG, []byte{0xFF, 0xD8, 0xFF}},
	{DocumentPNG, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
}

// MIME type -> document type
var documentMimeTypes = map[string]string{
	"application/pdf": DocumentPDF,
	"image/jpeg":      DocumentJPEG,
	"image/png":       DocumentPNG,
}

var documentExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// NewDocumentValidator creates a validator with the given maximum size
func NewDocumentValidator(maxSizeBytes int64) *DocumentValidator {
	return &DocumentValidator{maxSizeBytes: maxSizeBytes}
}

// ValidateUpload checks what can be known before the bytes exist.
func (v *DocumentValidator) ValidateUpload(filename, contentType string) error {
	if err := v.ValidateFilename(filename); err != nil {
		return err
	}
	return v.ValidateMimeType(contentType)
}

// ValidateDocument validates name, MIME type, size and content of a stored document
func (v *DocumentValidator) ValidateDocument(reader io.Reader, filename, contentType string) (*ValidationResult, error) {
	result := &ValidationResult{
		Valid:       true,
		ContentType: contentType,
		Errors:      []string{},
	}

	fail := func(err error) {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}

	if err := v.ValidateFilename(filename); err != nil {
		fail(err)
	}
	if err := v.ValidateMimeType(contentType); err != nil {
		fail(err)
	}

	// Read one byte past the limit so oversize documents are detected without loading them whole
	data, err := io.ReadAll(io.LimitReader(reader, v.maxSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	result.Size = int64(len(data))
	if err := v.ValidateFileSize(result.Size); err != nil {
		fail(err)
	}

	detected, err := v.DetectType(data)
	if err != nil {
		fail(err)
		return result, nil
	}
	result.DetectedType = detected

	if documentMimeTypes[contentType] != detected {
		fail(errors.New("MIME type does not match document content"))
	}

	return result, nil
}

// ValidateFilename rejects unsafe names and unsupported extensions
func (v *DocumentValidator) ValidateFilename(filename string) error {
	if filename == "" {
		return errors.New("filename cannot be empty")
	}
	if strings.Contains(filename, "..") {
		return errors.New("filename contains path traversal")
	}
	if strings.Contains(filename, "\x00") {
		return errors.New("filename contains null bytes")
	}
	if strings.HasPrefix(filename, "/") || strings.HasPrefix(filename, "\\") {
		return errors.New("filename cannot be absolute path")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return errors.New("filename must have an extension")
	}
	if !documentExtensions[ext] {
		return fmt.Errorf("unsupported file extension: %s", ext)
	}
	return nil
}

// ValidateMimeType validates the MIME type is allowed
func (v *DocumentValidator) ValidateMimeType(contentType string) error {
	if contentType == "" {
		return errors.New("MIME type cannot be empty")
	}
	if _, ok := documentMimeTypes[contentType]; !ok {
		return fmt.Errorf("unsupported MIME type: %s", contentType)
	}
	return nil
}

// DetectType identifies the document from its magic bytes
func (v *DocumentValidator) DetectType(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty file")
	}
	for _, m := range documentMagicBytes {
		if bytes.HasPrefix(data, m.magic) {
			return m.kind, nil
		}
	}
	return "", errors.New("unsupported file type based on content")
}

// ValidateFileSize validates the size is within limits
func (v *DocumentValidator) ValidateFileSize(size int64) error {
	if size < 0 {
		return errors.New("invalid file size")
	}
	if size == 0 {
		return errors.New("empty file")
	}
	if size > v.maxSizeBytes {
		return fmt.Errorf("file size exceeds maximum allowed size (%d bytes)", v.maxSizeBytes)
	}
	return nil
}
