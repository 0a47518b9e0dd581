package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/go-resty/resty/v2"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxMediaBytes = 8 << 20
	maxImageSide         = 1280
	jpegQuality          = 85
)

var ErrMediaTooLarge = errors.New("publisher: media exceeds size limit")

// MediaFetcher downloads images and re-encodes them for upload.
type MediaFetcher struct {
	client   *resty.Client
	maxBytes int64
}

func NewMediaFetcher(client *resty.Client, maxBytes int64) *MediaFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMediaBytes
	}
	return &MediaFetcher{client: client, maxBytes: maxBytes}
}

// Fetch downloads url and returns it as a normalized JPEG.
func (m *MediaFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	data, err := m.download(ctx, url)
	if err != nil {
		return nil, err
	}
	return Normalize(data)
}

func (m *MediaFetcher) download(ctx context.Context, url string) ([]byte, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode(), url)
	}

	data, err := io.ReadAll(io.LimitReader(body, m.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	if int64(len(data)) > m.maxBytes {
		return nil, fmt.Errorf("%s: %w", url, ErrMediaTooLarge)
	}
	return data, nil
}

// Normalize decodes an image, flattens transparency onto white, bounds the
// longest side to 1280 pixels and re-encodes it as JPEG.
func Normalize(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	flat := imaging.New(b.Dx(), b.Dy(), color.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	resized := imaging.Fit(flat, maxImageSide, maxImageSide, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
