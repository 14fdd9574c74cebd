package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

// maxBody bounds a decompressed import body.
const maxBody = 64 << 20

// HTTPSource fetches import bodies from the authenticated content API. The
// API answers a settings document with a gzip-compressed body.
type HTTPSource struct {
	URL   string
	Token string
	// Client defaults to a client with Timeout.
	Client  *http.Client
	Timeout time.Duration
}

func (s *HTTPSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Fetch posts settings and returns the decompressed response body.
func (s *HTTPSource) Fetch(ctx context.Context, settings Settings) (string, error) {
	payload, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("%w: encoding settings: %v", ErrImport, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: building request: %v", ErrImport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s returned %s", ErrImport, s.URL, resp.Status)
	}

	body, err := decompress(resp.Body)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(body) {
		return "", fmt.Errorf("%w: body is not valid UTF-8", ErrImport)
	}
	return string(body), nil
}

// decompress reads r, inflating it when it starts with the gzip magic bytes.
func decompress(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(2)
	var src io.Reader = br
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: opening gzip body: %v", ErrImport, err)
		}
		defer zr.Close()
		src = zr
	}
	body, err := io.ReadAll(io.LimitReader(src, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrImport, err)
	}
	if len(body) > maxBody {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrImport, maxBody)
	}
	return body, nil
}
