package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Upload validation shared by the reference and colorize endpoints.
const maxUploadSize = 10 * 1024 * 1024

var allowedContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

const allowedContentTypeList = "image/gif, image/jpeg, image/png, image/webp"

// readImageUpload extracts the multipart "file" part, enforcing the allowed
// content types and the size ceiling. The returned error text is safe to
// show to clients.
func readImageUpload(r *http.Request, defaultName string) (string, []byte, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, errors.New("file is required")
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if _, ok := allowedContentTypes[contentType]; !ok {
		return "", nil, fmt.Errorf("Invalid file type. Allowed: %s", allowedContentTypeList)
	}

	content, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		return "", nil, errors.New("failed to read upload")
	}
	if len(content) > maxUploadSize {
		return "", nil, fmt.Errorf("File too large. Maximum size: %dMB", maxUploadSize/1024/1024)
	}

	filename := header.Filename
	if filename == "" {
		filename = defaultName
	}
	return filename, content, nil
}
