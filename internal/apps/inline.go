package apps

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// LoadContent parses inline config given as base64(gzip(yaml)), the format
// of RTM_APPS_CONFIG_CONTENT.
func LoadContent(content string) (*Config, error) {
	data, err := DecodeContent(content)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// DecodeContent reverses EncodeContent.
func DecodeContent(content string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("apps: inline content is not base64: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("apps: inline content is not gzip: %w", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("apps: inline content: %w", err)
	}
	return data, nil
}

// EncodeContent produces base64(gzip(data)) for RTM_APPS_CONFIG_CONTENT.
func EncodeContent(data []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Resolve loads inline content when set, else the file at path.
func Resolve(path, content string) (*Config, error) {
	if content != "" {
		return LoadContent(content)
	}
	return Load(path)
}
