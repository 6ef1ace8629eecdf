package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/svyatogor45/marketmonitor/internal/errs"
	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

// ChatBotAdapter delivers a notification over the chat-bot host's
// sendMessage endpoint. Grounded on internal/alertsapi's http.Client
// composition; no retry/rate-limit of its own since the Dispatcher
// already performs both before invoking the adapter.
type ChatBotAdapter struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewChatBotAdapter(baseURL, token string) *ChatBotAdapter {
	return &ChatBotAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID                string      `json:"chat_id"`
	Text                  string      `json:"text"`
	ParseMode             string      `json:"parse_mode,omitempty"`
	ReplyMarkup           interface{} `json:"reply_markup,omitempty"`
	DisableWebPagePreview bool        `json:"disable_web_page_preview,omitempty"`
}

type sendMessageResponse struct {
	OK bool `json:"ok"`
}

func (a *ChatBotAdapter) Send(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                n.User,
		Text:                  n.Message,
		ParseMode:             n.Metadata.ParseMode,
		DisableWebPagePreview: n.Metadata.DisableWebPagePreview,
	})
	if err != nil {
		return errs.Wrap(errs.InvalidPayload, err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", a.baseURL, a.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.InvalidPayload, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.TransientNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.TransientNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return errs.Wrap(errs.TransientNetwork, fmt.Errorf("chat-bot: unexpected status %s", resp.Status))
	}

	var parsed sendMessageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return errs.Wrap(errs.InvalidPayload, err)
	}
	if !parsed.OK {
		return errs.Wrap(errs.TransientNetwork, fmt.Errorf("chat-bot: ok=false"))
	}
	return nil
}

// LogOnlyAdapter stands in for web/discord channels (out of scope per
// §4.9's "other channels" note): it records delivery without a real
// transport.
type LogOnlyAdapter struct {
	Channel string
}

func (a *LogOnlyAdapter) Send(ctx context.Context, n model.Notification) error {
	utils.Info("dispatcher: log-only channel delivery", utils.Channel(a.Channel), utils.NotifyID(n.User))
	return nil
}
