package release

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shaiso/Shipyard/internal/domain"
)

const (
	defaultGitHubAPI    = "https://api.github.com"
	defaultGitHubUpload = "https://uploads.github.com"
)

// GitHubConfig — конфигурация GitHubPublisher.
type GitHubConfig struct {
	Owner string
	Repo  string
	Token string

	// BaseURL и UploadURL переопределяются в тестах.
	BaseURL   string
	UploadURL string

	HTTPClient *http.Client
}

// GitHubPublisher публикует черновики в GitHub Releases.
type GitHubPublisher struct {
	owner     string
	repo      string
	token     string
	baseURL   string
	uploadURL string
	client    *http.Client

	mu  sync.Mutex
	ids map[string]int64 // tag → release id
}

// NewGitHubPublisher создаёт публикатор.
func NewGitHubPublisher(cfg GitHubConfig) *GitHubPublisher {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGitHubAPI
	}
	uploadURL := cfg.UploadURL
	if uploadURL == "" {
		uploadURL = defaultGitHubUpload
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	return &GitHubPublisher{
		owner:     cfg.Owner,
		repo:      cfg.Repo,
		token:     cfg.Token,
		baseURL:   baseURL,
		uploadURL: uploadURL,
		client:    client,
		ids:       make(map[string]int64),
	}
}

// githubRelease — ответ GitHub API для релиза.
type githubRelease struct {
	ID         int64         `json:"id"`
	TagName    string        `json:"tag_name"`
	Name       string        `json:"name"`
	Draft      bool          `json:"draft"`
	Prerelease bool          `json:"prerelease"`
	CreatedAt  string        `json:"created_at"`
	Assets     []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

func (r githubRelease) toRecord() *domain.ReleaseRecord {
	created, _ := time.Parse(time.RFC3339, r.CreatedAt)
	rec := &domain.ReleaseRecord{
		Tag:        r.TagName,
		Title:      r.Name,
		Draft:      r.Draft,
		Prerelease: r.Prerelease,
		CreatedAt:  created,
		Assets:     make([]domain.ReleaseAsset, 0, len(r.Assets)),
	}
	for _, a := range r.Assets {
		rec.Assets = append(rec.Assets, domain.ReleaseAsset{
			Name:        a.Name,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return rec
}

// CreateDraft создаёт черновик.
//
// Черновики в GitHub не занимают тег, поэтому существующий релиз
// с тем же tag_name ищется явно (включая черновики).
func (p *GitHubPublisher) CreateDraft(ctx context.Context, rec *domain.ReleaseRecord) error {
	existing, err := p.find(ctx, rec.Tag)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrReleaseExists, rec.Tag)
	}

	body := map[string]any{
		"tag_name":   rec.Tag,
		"name":       rec.Title,
		"draft":      true,
		"prerelease": rec.Prerelease,
	}
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases", p.baseURL, p.owner, p.repo)

	var created githubRelease
	status, err := p.doJSON(ctx, http.MethodPost, endpoint, body, &created)
	if status == http.StatusUnprocessableEntity {
		return fmt.Errorf("%w: %s", ErrReleaseExists, rec.Tag)
	}
	if err != nil {
		return fmt.Errorf("create github release: %w", err)
	}

	p.mu.Lock()
	p.ids[rec.Tag] = created.ID
	p.mu.Unlock()
	return nil
}

// AttachAsset загружает файл в релиз.
func (p *GitHubPublisher) AttachAsset(ctx context.Context, tag string, asset domain.ReleaseAsset, data []byte) error {
	id, err := p.releaseID(ctx, tag)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/%d/assets?name=%s",
		p.uploadURL, p.owner, p.repo, id, url.QueryEscape(asset.Name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	p.setHeaders(req)
	req.Header.Set("Content-Type", asset.ContentType)
	req.ContentLength = int64(len(data))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("github upload error: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}

// Get возвращает релиз по тегу.
func (p *GitHubPublisher) Get(ctx context.Context, tag string) (*domain.ReleaseRecord, error) {
	rel, err := p.find(ctx, tag)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, fmt.Errorf("%w: %s", ErrReleaseNotFound, tag)
	}
	return rel.toRecord(), nil
}

// releaseID возвращает ID релиза из кэша или из API.
func (p *GitHubPublisher) releaseID(ctx context.Context, tag string) (int64, error) {
	p.mu.Lock()
	id, ok := p.ids[tag]
	p.mu.Unlock()
	if ok {
		return id, nil
	}

	rel, err := p.find(ctx, tag)
	if err != nil {
		return 0, err
	}
	if rel == nil {
		return 0, fmt.Errorf("%w: %s", ErrReleaseNotFound, tag)
	}

	p.mu.Lock()
	p.ids[tag] = rel.ID
	p.mu.Unlock()
	return rel.ID, nil
}

// find ищет релиз (включая черновики) по tag_name.
func (p *GitHubPublisher) find(ctx context.Context, tag string) (*githubRelease, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=100", p.baseURL, p.owner, p.repo)

	var releases []githubRelease
	if _, err := p.doJSON(ctx, http.MethodGet, endpoint, nil, &releases); err != nil {
		return nil, fmt.Errorf("list github releases: %w", err)
	}

	for i := range releases {
		if releases[i].TagName == tag {
			return &releases[i], nil
		}
	}
	return nil, nil
}

// doJSON выполняет JSON-запрос и декодирует ответ в target.
func (p *GitHubPublisher) doJSON(ctx context.Context, method, endpoint string, body, target any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encoding body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	p.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("github API error: %s", resp.Status)
	}
	if target == nil {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(target)
}

func (p *GitHubPublisher) setHeaders(req *http.Request) {
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}
