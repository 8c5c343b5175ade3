package opengraph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zfogg/beacon/internal/telemetry"
	_ "golang.org/x/image/webp"
)

const (
	// maxImageBytes bounds downloaded element images.
	maxImageBytes = 10 << 20
	// maxImagePixels bounds the decoded size. Compressed formats can expand a
	// small download into a huge bitmap.
	maxImagePixels = MaxDimension * MaxDimension
)

// ErrImageTooLarge is returned for images whose decoded size exceeds the limit.
var ErrImageTooLarge = errors.New("image too large")

// HTTPFetcher downloads and decodes PNG, JPEG, GIF and WebP images.
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher creates a fetcher with the given request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	rc := resty.NewWithClient(telemetry.NewInstrumentedHTTPClient(timeout))
	rc.SetHeader("User-Agent", "Beacon/1.0 (+opengraph)")
	rc.SetHeader("Accept", "image/*")
	return &HTTPFetcher{client: rc}
}

// Fetch downloads src and decodes it.
func (f *HTTPFetcher) Fetch(ctx context.Context, src string) (image.Image, error) {
	resp, err := f.client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(src)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", src, resp.StatusCode())
	}
	data, err := io.ReadAll(io.LimitReader(body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	img, err := decodeBounded(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	return img, nil
}

// decodeBounded reads the image header first and only decodes images within
// maxImagePixels.
func decodeBounded(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}
