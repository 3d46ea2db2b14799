package services

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// ModerationService calls an external content classifier before a message
// is accepted. The classifier is advisory infrastructure: when it is not
// configured, times out or errors, messages flow through unmoderated
// rather than being dropped.
type ModerationService struct {
	appContext.DefaultService

	apiURL string
	client *http.Client
}

const MODERATION_SVC = "moderation_svc"

const (
	ModerationAllow = "allow"
	ModerationFlag  = "flag"
	ModerationBlock = "block"
)

type ModerationDecision struct {
	Action     string  `json:"action"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

func (svc ModerationService) Id() string {
	return MODERATION_SVC
}

func (svc *ModerationService) Configure(ctx *appContext.Context) error {
	svc.apiURL = os.Getenv("MODERATION_API_URL")
	svc.client = &http.Client{Timeout: 3 * time.Second}
	return svc.DefaultService.Configure(ctx)
}

func (svc *ModerationService) Start() error {
	if svc.apiURL == "" {
		log.Info("Moderation API not configured, content checks disabled")
	}
	return nil
}

func (svc *ModerationService) Enabled() bool {
	return svc.apiURL != ""
}

// ClassifyContent returns the classifier's verdict, or allow when the
// classifier is disabled or unreachable.
func (svc *ModerationService) ClassifyContent(ctx context.Context, content string) *ModerationDecision {
	allow := &ModerationDecision{Action: ModerationAllow}
	if !svc.Enabled() {
		return allow
	}

	payload, err := sonic.Marshal(map[string]string{"content": content})
	if err != nil {
		return allow
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.apiURL, bytes.NewReader(payload))
	if err != nil {
		return allow
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := svc.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("Moderation API unreachable, allowing content")
		return allow
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithField("status", resp.StatusCode).Warn("Moderation API error, allowing content")
		return allow
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return allow
	}

	var decision ModerationDecision
	if err := sonic.Unmarshal(body, &decision); err != nil {
		log.WithError(err).Warn("Moderation API returned malformed response, allowing content")
		return allow
	}

	switch decision.Action {
	case ModerationAllow, ModerationFlag, ModerationBlock:
		return &decision
	default:
		return allow
	}
}
