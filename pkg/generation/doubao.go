package generation

import (
	"cmp"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	arkm "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"

	"atelier/pkg/inference"
)

// Doubao generates images with Seedream models on Volcengine Ark.
type Doubao struct {
	apiKey  string
	baseURL string
	model   string
	size    string
	timeout time.Duration

	client *arkruntime.Client
}

func NewDoubao(apiKey, baseURL, model, size string, timeout time.Duration) *Doubao {
	d := &Doubao{apiKey: apiKey, baseURL: baseURL, model: model, size: cmp.Or(size, "2K"), timeout: timeout}
	if apiKey != "" {
		d.client = d.newClient(apiKey)
	}
	return d
}

func (d *Doubao) Vendor() Vendor { return VendorDoubao }

func (d *Doubao) newClient(key string) *arkruntime.Client {
	opts := []arkruntime.ConfigOption{arkruntime.WithBaseUrl(d.baseURL)}
	if d.timeout > 0 {
		opts = append(opts, arkruntime.WithTimeout(d.timeout))
	}
	return arkruntime.NewClientWithApiKey(key, opts...)
}

func (d *Doubao) clientFor(key string) (*arkruntime.Client, error) {
	switch {
	case key != "" && key != d.apiKey:
		return d.newClient(key), nil
	case d.client != nil:
		return d.client, nil
	default:
		return nil, inference.ErrMissingAPIKey
	}
}

// Generate runs text-to-image, or image-to-image on the first reference
// image when any are given.
func (d *Doubao) Generate(ctx context.Context, req *Request) (*Result, error) {
	client, err := d.clientFor(req.APIKey)
	if err != nil {
		return nil, err
	}

	params := arkm.GenerateImagesRequest{
		Model:          d.model,
		Prompt:         req.Prompt,
		Size:           volcengine.String(d.size),
		ResponseFormat: volcengine.String(arkm.GenerateImagesResponseFormatURL),
		Watermark:      volcengine.Bool(false),
	}
	if len(req.Images) > 0 {
		params.Image = req.Images[0]
		log.Debug("doubao image-to-image", "references", len(req.Images))
	}

	resp, err := client.GenerateImages(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("doubao request failed: %w", err)
	}
	return decodeDoubao(&resp)
}

func decodeDoubao(resp *arkm.ImagesResponse) (*Result, error) {
	if resp.Error != nil {
		return nil, fmt.Errorf("doubao API error (%s): %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Data) == 0 || resp.Data[0] == nil {
		return nil, fmt.Errorf("doubao: %w", ErrNoImage)
	}

	img := resp.Data[0]
	if img.Url != nil && *img.Url != "" {
		return &Result{URL: *img.Url}, nil
	}
	if img.B64Json != nil && *img.B64Json != "" {
		data, err := base64.StdEncoding.DecodeString(*img.B64Json)
		if err != nil {
			return nil, fmt.Errorf("doubao: decoding b64_json: %w", err)
		}
		return &Result{Data: data, MIMEType: "image/png"}, nil
	}
	return nil, fmt.Errorf("doubao: %w", ErrNoImage)
}
