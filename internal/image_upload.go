package internal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMaxImageSize bounds uploads to the image relay.
const DefaultMaxImageSize int64 = 10 << 20 // 10 MiB

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// IsImageFile reports whether a path looks like an uploadable image.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// ImageRelay uploads local images to the server's relay and hands back the
// reference URL that goes into the message body. The relay keeps the bytes;
// messages only ever carry the reference.
type ImageRelay struct {
	baseURL string
	maxSize int64
}

func NewImageRelay(serverURL string, maxSize int64) (*ImageRelay, error) {
	base, err := httpBaseFromSocketURL(serverURL)
	if err != nil {
		return nil, err
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxImageSize
	}
	return &ImageRelay{baseURL: base, maxSize: maxSize}, nil
}

type imageUploadResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Upload posts the image at path as multipart form data and returns the
// reference URL for the message body.
func (r *ImageRelay) Upload(path, username string) (string, error) {
	if !IsImageFile(path) {
		return "", fmt.Errorf("not an image: %s", filepath.Base(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > r.maxSize {
		return "", fmt.Errorf("image too large: %d bytes (max %d)", info.Size(), r.maxSize)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.WriteField("username", username); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, r.baseURL+"/api/images", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("User-Agent", UserAgent)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body))
	}

	var parsed imageUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	switch {
	case parsed.URL != "":
		return parsed.URL, nil
	case parsed.ID != "":
		return r.baseURL + "/api/images/" + parsed.ID, nil
	default:
		return "", errors.New("upload response missing image reference")
	}
}
