package poesource

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/poe-tool-dev/ggpkfs/pkg/bundle"
	"github.com/poe-tool-dev/ggpkfs/pkg/poeerr"
)

const latestPatchVersionURL = "https://raw.githubusercontent.com/poe-tool-dev/latest-patch-version/main/latest.txt"

const patchCDNBase = "https://patch.poecdn.com"

// OnlineSource fetches bundle-wrapped payloads from the patch CDN, keyed by
// a patch version resolved once (lazily, if not supplied).
type OnlineSource struct {
	client  *http.Client
	baseURL string // patchCDNBase in production, overridden by tests

	mu      sync.Mutex
	version string
}

// NewOnline constructs an OnlineSource. version may be empty, in which case
// it is resolved on first use from latestPatchVersionURL. client may be nil,
// in which case http.DefaultClient is used.
func NewOnline(version string, client *http.Client) *OnlineSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &OnlineSource{client: client, version: version, baseURL: patchCDNBase}
}

func (s *OnlineSource) resolveVersion() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != "" {
		return s.version, nil
	}

	resp, err := s.client.Get(latestPatchVersionURL)
	if err != nil {
		return "", fmt.Errorf("poesource: fetch latest patch version: %w: %w", poeerr.TransportError, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("poesource: fetch latest patch version: status %d: %w", resp.StatusCode, poeerr.TransportError)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("poesource: read latest patch version body: %w: %w", poeerr.TransportError, err)
	}
	s.version = strings.TrimSpace(string(body))
	return s.version, nil
}

// GetFile issues GET https://patch.poecdn.com/<version><path>. A 404 is
// reported as the (nil, nil, nil) not-found triple; any other non-2xx
// status is poeerr.TransportError.
func (s *OnlineSource) GetFile(path string) (*bundle.Header, []byte, error) {
	version, err := s.resolveVersion()
	if err != nil {
		return nil, nil, err
	}

	url := s.baseURL + "/" + version + path
	resp, err := s.client.Get(url)
	if err != nil {
		return nil, nil, fmt.Errorf("poesource: GET %s: %w: %w", url, poeerr.TransportError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("poesource: GET %s: status %d: %w", url, resp.StatusCode, poeerr.TransportError)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("poesource: read body for %s: %w: %w", url, poeerr.TransportError, err)
	}

	r := bytes.NewReader(body)
	header, err := bundle.ParseHeader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("poesource: parse bundle header for %s: %w", path, err)
	}
	payload := make([]byte, header.TotalPayloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, nil, fmt.Errorf("poesource: read payload for %s: %w", path, err)
	}
	return header, payload, nil
}
