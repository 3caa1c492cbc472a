package validation

import (
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/templui/fileshare/internal/apperr"
)

// FileConstraints defines validation rules for file uploads
type FileConstraints struct {
	AllowedExtensions map[string]bool
	MaxSize           int64
}

// NewFileConstraints builds constraints from a list of extensions like ".pdf".
func NewFileConstraints(extensions []string, maxSize int64) FileConstraints {
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}
	return FileConstraints{AllowedExtensions: allowed, MaxSize: maxSize}
}

// Extensions lists the allowed extensions for error messages.
func (c FileConstraints) Extensions() []string {
	exts := make([]string, 0, len(c.AllowedExtensions))
	for ext := range c.AllowedExtensions {
		exts = append(exts, ext)
	}
	return exts
}

// ValidateUpload checks size and extension of an uploaded file.
func (c FileConstraints) ValidateUpload(filename string, size int64) error {
	if size <= 0 {
		return apperr.NewValidation("Uploaded file is empty",
			apperr.FieldError{Field: "file", Message: "file is empty"})
	}

	if c.MaxSize > 0 && size > c.MaxSize {
		maxMB := float64(c.MaxSize) / (1 << 20)
		return apperr.NewValidation("File too large",
			apperr.FieldError{Field: "file", Message: fmt.Sprintf("maximum size is %.0f MB", maxMB)})
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !c.AllowedExtensions[ext] {
		return apperr.NewValidation("Invalid file type",
			apperr.FieldError{Field: "file", Message: fmt.Sprintf("extension %q is not allowed", ext)})
	}

	return nil
}

// DetectContentType sniffs the MIME type from the file content and rewinds it.
// Falls back to the client-declared type when the content is not recognised.
func DetectContentType(file multipart.File, declared string) (string, error) {
	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	_, err = file.Seek(0, io.SeekStart)
	if err != nil {
		return "", fmt.Errorf("failed to reset file pointer: %w", err)
	}

	detected := mtype.String()
	if mtype.Is("application/octet-stream") && declared != "" {
		return declared, nil
	}
	return detected, nil
}
