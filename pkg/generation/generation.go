// Package generation turns a prompt and optional reference images into one
// generated image, using whichever vendor the caller's model selects.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"atelier/pkg/utils"
)

type Vendor string

const (
	VendorDoubao       Vendor = "doubao"
	VendorGemini       Vendor = "gemini"
	VendorGeminiNative Vendor = "gemini-native"
)

var (
	// ErrNoImage is returned when a vendor replies without any usable image.
	ErrNoImage = errors.New("no image found in vendor response")
	// ErrUnknownVendor is returned when the selected vendor has no generator.
	ErrUnknownVendor = errors.New("no generator registered for vendor")
)

type Request struct {
	Prompt string
	// Images are reference images as http(s) or data URLs.
	Images []string
	Model  string
	APIKey string
}

// Result is a generated image, either hosted by the vendor (URL) or returned
// inline (Data).
type Result struct {
	Vendor   Vendor
	URL      string
	Data     []byte
	MIMEType string
}

// Href is the URL handed back to clients: the hosted URL when there is one,
// otherwise a data URL of the inline bytes.
func (r *Result) Href() string {
	if r.URL != "" {
		return r.URL
	}
	mime := r.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return utils.DataURL(mime, r.Data)
}

type Generator interface {
	Vendor() Vendor
	Generate(ctx context.Context, req *Request) (*Result, error)
}

// Dispatcher routes requests to a generator by the model name the client sent.
type Dispatcher struct {
	generators map[Vendor]Generator
	fallback   Vendor
}

// NewDispatcher registers gens; requests naming no known vendor go to fallback.
func NewDispatcher(fallback Vendor, gens ...Generator) *Dispatcher {
	d := &Dispatcher{generators: make(map[Vendor]Generator, len(gens)), fallback: fallback}
	for _, g := range gens {
		d.generators[g.Vendor()] = g
	}
	return d
}

// Select maps a client model name to a generator. "Doubao" (any case) picks
// Doubao and "gemini-native" the native Gemini API; anything else, including
// an empty model, goes to the fallback vendor.
func (d *Dispatcher) Select(model string) (Generator, error) {
	vendor := d.fallback
	switch strings.ToLower(strings.TrimSpace(model)) {
	case string(VendorDoubao):
		vendor = VendorDoubao
	case string(VendorGeminiNative):
		vendor = VendorGeminiNative
	}

	g, ok := d.generators[vendor]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVendor, vendor)
	}
	return g, nil
}

func (d *Dispatcher) Generate(ctx context.Context, req *Request) (*Result, error) {
	g, err := d.Select(req.Model)
	if err != nil {
		return nil, err
	}

	log.Info("generating image", "vendor", g.Vendor(), "references", len(req.Images), "prompt", utils.LimitStr(req.Prompt, 40))
	result, err := g.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	result.Vendor = g.Vendor()
	return result, nil
}
