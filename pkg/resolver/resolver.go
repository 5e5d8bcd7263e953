// Package resolver determines which version of each artifact to install
// by querying a release index, falling back to a pinned identifier when
// the index cannot answer.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/wrapup/pkg/config"
	"github.com/arthur-debert/wrapup/pkg/errors"
	"github.com/arthur-debert/wrapup/pkg/logging"
	"github.com/arthur-debert/wrapup/pkg/types"
)

// maxIndexBytes bounds the release index body
const maxIndexBytes = 8 << 20

// memoSize bounds the per-run memo; there are only a handful of kinds
const memoSize = 16

// Release is one entry of a GitHub-style release index
type Release struct {
	TagName    string  `json:"tag_name"`
	Draft      bool    `json:"draft"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// Asset is a downloadable file of a release
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// Resolver maps an artifact kind to a concrete identifier
type Resolver struct {
	cfg    *config.Config
	client *http.Client
	memo   *lru.Cache[types.ArtifactKind, types.ArtifactIdentifier]
	logger zerolog.Logger
}

// New creates a Resolver. Its memo lives as long as the Resolver, which
// is one run.
func New(cfg *config.Config, client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: cfg.Network.Timeout}
	}
	memo, _ := lru.New[types.ArtifactKind, types.ArtifactIdentifier](memoSize)
	return &Resolver{
		cfg:    cfg,
		client: client,
		memo:   memo,
		logger: logging.GetLogger("resolver"),
	}
}

// Resolve returns the newest identifier for kind. When the index is
// unreachable, answers non-2xx, cannot be decoded or lists no matching
// asset, the configured fallback is returned with Fallback set and a
// warning is logged. Only an unknown kind is an error.
func (r *Resolver) Resolve(ctx context.Context, kind types.ArtifactKind) (types.ArtifactIdentifier, error) {
	art, ok := r.cfg.ArtifactFor(kind)
	if !ok {
		return types.ArtifactIdentifier{}, errors.Newf(errors.ErrInvalidInput, "unknown artifact kind %q", kind)
	}

	if id, ok := r.memo.Get(kind); ok {
		return id, nil
	}

	id, err := r.query(ctx, kind, art)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("kind", string(kind)).
			Str("fallback", art.Fallback).
			Msg("Version resolution failed, using fallback")
		return r.fallback(kind, art), nil
	}

	r.logger.Info().
		Str("kind", string(kind)).
		Str("name", id.Name).
		Str("version", id.Version).
		Msg("Resolved artifact")
	r.memo.Add(kind, id)
	return id, nil
}

func (r *Resolver) query(ctx context.Context, kind types.ArtifactKind, art config.Artifact) (types.ArtifactIdentifier, error) {
	if art.IndexURL == "" {
		return types.ArtifactIdentifier{}, errors.New(errors.ErrResolution, "no release index configured")
	}

	releases, err := r.fetchIndex(ctx, art.IndexURL)
	if err != nil {
		return types.ArtifactIdentifier{}, err
	}

	best, ok := selectAsset(releases, art.Prefix, art.Suffix)
	if !ok {
		return types.ArtifactIdentifier{}, errors.Newf(errors.ErrResolution,
			"no asset matching %s<version>%s in %d releases", art.Prefix, art.Suffix, len(releases)).
			WithDetail("index", art.IndexURL)
	}

	url := best.asset.BrowserDownloadURL
	if url == "" {
		url = joinURL(art.DownloadBase, best.asset.Name)
	}
	return types.ArtifactIdentifier{
		Kind:    kind,
		Name:    best.asset.Name,
		Version: best.version,
		URL:     url,
		SHA256:  r.cfg.Checksum(best.asset.Name),
	}, nil
}

func (r *Resolver) fetchIndex(ctx context.Context, url string) ([]Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrResolution, "invalid index url %s", url)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if r.cfg.Network.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.Network.UserAgent)
	}
	if r.cfg.Network.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Network.Token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrResolution, "failed to query %s", url)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Newf(errors.ErrResolution, "release index %s answered %d", url, resp.StatusCode).
			WithDetail("status", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIndexBytes))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrResolution, "failed to read %s", url)
	}
	return decodeIndex(body)
}

// decodeIndex accepts a list of releases or a single release object
func decodeIndex(body []byte) ([]Release, error) {
	var releases []Release
	if err := json.Unmarshal(body, &releases); err == nil {
		return releases, nil
	}
	var single Release
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, errors.Wrap(err, errors.ErrResolution, "failed to decode release index")
	}
	return []Release{single}, nil
}

func (r *Resolver) fallback(kind types.ArtifactKind, art config.Artifact) types.ArtifactIdentifier {
	version, _ := versionOf(art.Fallback, art.Prefix, art.Suffix)
	return types.ArtifactIdentifier{
		Kind:     kind,
		Name:     art.Fallback,
		Version:  version,
		URL:      joinURL(art.DownloadBase, art.Fallback),
		Fallback: true,
		SHA256:   r.cfg.Checksum(art.Fallback),
	}
}

func joinURL(base, name string) string {
	if base == "" {
		return name
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), name)
}
