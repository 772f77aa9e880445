// Package manifest fetches source manifests and explodes them into
// (source, layer, name) job triples.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/openaddresses/batch-sub000/internal/apperr"
)

// UserAgent is sent with every manifest request.
const UserAgent = "OpenAddresses Batch"

// SupportedSchema is the only manifest schema that can be exploded.
const SupportedSchema = 2

// allowedHosts are the hosts a manifest reference may point at.
var allowedHosts = map[string]bool{
	"github.com":                true,
	"raw.githubusercontent.com": true,
}

// Fetcher retrieves a manifest document. A missing document yields an
// error matching apperr.ErrNotFound so callers can treat the file as new.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Source is a decoded schema-2 source manifest.
type Source struct {
	Schema   int                         `json:"schema"`
	Coverage map[string]any              `json:"coverage"`
	Layers   map[string][]map[string]any `json:"layers"`
}

// Triple identifies one job: a manifest URL, a layer, and a layer entry name.
type Triple struct {
	Source string `json:"source"`
	Layer  string `json:"layer"`
	Name   string `json:"name"`
}

// HTTPFetcher fetches manifests over HTTP.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher using client, or a client with a 30s
// timeout when client is nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{client: client}
}

// Get performs the GET. 404 maps to apperr.ErrNotFound, any other non-2xx to
// apperr.ErrUpstream.
func (f *HTTPFetcher) Get(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, apperr.Validation("invalid manifest url %q", ref)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperr.Upstream(err, "fetch %s", ref)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperr.NotFound("manifest %s not found", ref)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Upstream(fmt.Errorf("status %d", resp.StatusCode), "fetch %s", ref)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream(err, "read %s", ref)
	}
	return body, nil
}

// CheckReference validates that ref is an https URL on an allowed host and
// returns the raw URL to fetch. github.com blob URLs are rewritten to their
// raw.githubusercontent.com form.
func CheckReference(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "https" || !allowedHosts[u.Host] {
		return "", apperr.InvalidJobReference("%q is not a github.com or raw.githubusercontent.com url", ref)
	}
	if u.Host == "github.com" {
		// /{owner}/{repo}/blob/{ref}/{path...}
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 5)
		if len(parts) == 5 && parts[2] == "blob" {
			u.Host = "raw.githubusercontent.com"
			u.Path = "/" + strings.Join([]string{parts[0], parts[1], parts[3], parts[4]}, "/")
		}
	}
	return u.String(), nil
}

// Parse decodes and validates a manifest document.
func Parse(data []byte) (*Source, error) {
	var src Source
	if err := json.Unmarshal(data, &src); err != nil {
		return nil, apperr.Validation("manifest is not valid JSON: %v", err)
	}
	if src.Schema != SupportedSchema {
		return nil, apperr.Validation("manifest schema %d is not supported, want %d", src.Schema, SupportedSchema)
	}
	if src.Layers == nil {
		return nil, apperr.Validation("manifest has no layers")
	}
	return &src, nil
}

// Explode turns every (layer, entry) pair of src into a triple sourced at ref.
// Entries without a name are reported and skipped. Layers come out sorted so
// job ids are assigned in a stable order.
func Explode(ref string, src *Source) ([]Triple, []error) {
	layers := make([]string, 0, len(src.Layers))
	for layer := range src.Layers {
		layers = append(layers, layer)
	}
	sort.Strings(layers)

	var (
		out  []Triple
		errs []error
	)
	for _, layer := range layers {
		for i, entry := range src.Layers[layer] {
			name, _ := entry["name"].(string)
			if name == "" {
				errs = append(errs, apperr.Validation("%s: layers.%s[%d] has no name", ref, layer, i))
				continue
			}
			out = append(out, Triple{Source: ref, Layer: layer, Name: name})
		}
	}
	return out, errs
}

// Fetch retrieves and parses the manifest at ref.
func Fetch(ctx context.Context, f Fetcher, ref string) (*Source, error) {
	data, err := f.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
