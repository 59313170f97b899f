package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shaiso/Shipyard/internal/domain"
)

// maxWebhookBody — максимальный размер тела webhook.
const maxWebhookBody = 5 << 20

// Заголовки GitHub webhook.
const (
	headerGitHubEvent     = "X-GitHub-Event"
	headerGitHubSignature = "X-Hub-Signature-256"
	headerGitHubDelivery  = "X-GitHub-Delivery"
)

// githubPushEvent — интересующие нас поля события push.
type githubPushEvent struct {
	Ref     string `json:"ref"`
	After   string `json:"after"`
	Deleted bool   `json:"deleted"`
}

// githubPullRequestEvent — интересующие нас поля события pull_request.
type githubPullRequestEvent struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Head struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
}

// WebhookResponse — ответ на webhook.
type WebhookResponse struct {
	Ignored string       `json:"ignored,omitempty"`
	Run     *RunResponse `json:"run,omitempty"`
}

// GitHubWebhook переводит webhook GitHub в run.
// POST /api/v1/hooks/github?pipeline=...
//
// push на refs/tags/* запускает run с событием tag, остальные push — push.
// pull_request (opened, reopened, synchronize) запускает run на refs/pull/N/head.
// Прочие события подтверждаются и игнорируются.
func (h *Handler) GitHubWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		BadRequest(w, "failed to read body")
		return
	}

	if h.webhookSecret != "" && !validSignature(h.webhookSecret, r.Header.Get(headerGitHubSignature), body) {
		h.requestLogger(r).Warn("webhook signature mismatch", "delivery", r.Header.Get(headerGitHubDelivery))
		Unauthorized(w, "invalid signature")
		return
	}

	pipeline := r.URL.Query().Get("pipeline")
	if pipeline == "" {
		pipeline = h.defaultPipeline
	}
	if pipeline == "" {
		BadRequest(w, "pipeline is required")
		return
	}

	event := r.Header.Get(headerGitHubEvent)
	trigger, ignored, err := parseGitHubEvent(event, body)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	if ignored != "" {
		h.requestLogger(r).Debug("webhook ignored",
			"event", event,
			"delivery", r.Header.Get(headerGitHubDelivery),
			"reason", ignored,
		)
		Success(w, WebhookResponse{Ignored: ignored})
		return
	}

	run, ok := h.submit(w, r, pipeline, trigger)
	if !ok {
		return
	}
	resp := RunFromDomain(*run)
	Accepted(w, WebhookResponse{Run: &resp})
}

// parseGitHubEvent возвращает триггер события либо причину, по которой
// событие не запускает run.
func parseGitHubEvent(event string, body []byte) (domain.Trigger, string, error) {
	switch event {
	case "push":
		var push githubPushEvent
		if err := json.Unmarshal(body, &push); err != nil {
			return domain.Trigger{}, "", fmt.Errorf("invalid push payload: %w", err)
		}
		if push.Ref == "" {
			return domain.Trigger{}, "", fmt.Errorf("push payload has no ref")
		}
		if push.Deleted {
			return domain.Trigger{}, "ref deleted", nil
		}
		return domain.Trigger{Event: eventForRef(push.Ref), Ref: push.Ref}, "", nil

	case "pull_request":
		var pr githubPullRequestEvent
		if err := json.Unmarshal(body, &pr); err != nil {
			return domain.Trigger{}, "", fmt.Errorf("invalid pull_request payload: %w", err)
		}
		switch pr.Action {
		case "opened", "reopened", "synchronize":
		default:
			return domain.Trigger{}, "pull_request action " + pr.Action, nil
		}
		if pr.Number <= 0 {
			return domain.Trigger{}, "", fmt.Errorf("pull_request payload has no number")
		}
		ref := fmt.Sprintf("refs/pull/%d/head", pr.Number)
		return domain.Trigger{Event: domain.EventPullRequest, Ref: ref}, "", nil

	case "":
		return domain.Trigger{}, "", fmt.Errorf("missing %s header", headerGitHubEvent)

	default:
		return domain.Trigger{}, "event " + event, nil
	}
}

// validSignature проверяет подпись X-Hub-Signature-256.
func validSignature(secret, header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
