package server

import (
	"bytes"
	"cmp"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/webp"
	"github.com/go-resty/resty/v2"
	"github.com/labstack/echo/v4"

	"atelier/pkg/config"
	"atelier/pkg/utils"
)

const downloadUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

func newDownloadClient(cfg *config.Config) *resty.Client {
	allowPrivate := cfg.AllowPrivateDownloads
	client := resty.New().
		SetHeader("User-Agent", downloadUserAgent).
		SetTimeout(cfg.VendorTimeout).
		SetRedirectPolicy(
			resty.FlexibleRedirectPolicy(5),
			resty.RedirectPolicyFunc(func(req *http.Request, _ []*http.Request) error {
				return utils.ValidateRemoteURL(req.URL.String(), allowPrivate)
			}),
		)
	if !allowPrivate {
		client.SetTransport(guardedTransport())
	}
	return client
}

// guardedTransport checks every dialed address, so a host that resolved to a
// public address during validation cannot be re-resolved to a private one.
func guardedTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   utils.DialControl,
	}
	return &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

type downloadReq struct {
	ImageURL string `json:"imageUrl"`
	Filename string `json:"filename"`
	// Format "webp" transcodes the image before sending it.
	Format string `json:"format"`
}

// POST /api/download
func (s *Server) handlePostDownload(c echo.Context) error {
	var req downloadReq
	bindLoose(c, &req)

	if req.ImageURL == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": msgImageURLMissing})
	}

	var (
		mime string
		data []byte
		err  error
	)
	if utils.IsDataURL(req.ImageURL) {
		mime, data, err = utils.ParseDataURL(req.ImageURL)
	} else {
		if err := utils.ValidateRemoteURL(req.ImageURL, s.cfg.AllowPrivateDownloads); err != nil {
			return c.JSON(http.StatusBadRequest, utils.ErrDetails(msgDownloadFailed, err.Error()))
		}
		mime, data, err = s.fetchImage(c, req.ImageURL)
	}
	if err != nil {
		log.Error("downloading image", "url", utils.LimitStr(req.ImageURL, 120), "filename", req.Filename, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": msgDownloadFailed, "details": err.Error()})
	}

	filename := cmp.Or(utils.SanitizeFilename(req.Filename), "image.png")
	if strings.EqualFold(req.Format, "webp") {
		data, err = toWebP(data)
		if err != nil {
			log.Error("transcoding image", "filename", filename, "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]any{"error": msgDownloadFailed, "details": err.Error()})
		}
		mime = "image/webp"
		filename = strings.TrimSuffix(filename, path.Ext(filename)) + ".webp"
	}

	h := c.Response().Header()
	h.Set(echo.HeaderContentDisposition, contentDisposition(filename))
	h.Set("Cache-Control", "no-cache")
	return c.Blob(http.StatusOK, mime, data)
}

func (s *Server) fetchImage(c echo.Context, u string) (string, []byte, error) {
	res, err := s.download.R().SetContext(c.Request().Context()).Get(u)
	if err != nil {
		return "", nil, err
	}
	if !res.IsSuccess() {
		return "", nil, fmt.Errorf("HTTP error! status: %d", res.StatusCode())
	}
	return cmp.Or(res.Header().Get(echo.HeaderContentType), "image/png"), res.Body(), nil
}

func toWebP(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, img, webp.Options{Lossless: false, Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

// contentDisposition carries an ASCII fallback name and the UTF-8 original.
func contentDisposition(filename string) string {
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		utils.ASCIIFilename(filename), url.PathEscape(filename))
}
