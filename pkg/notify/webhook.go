// Package notify posts run summaries to an operator webhook so a failed
// weekly export is noticed without reading the log file.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	httpclient "github.com/natserract/idmcexport/pkg/http"
	"go.uber.org/zap"
)

type Webhook struct {
	url    string
	client *httpclient.Client
	logger *zap.Logger
}

func NewWebhook(url string, client *httpclient.Client, logger *zap.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: client,
		logger: logger,
	}
}

// Send posts payload as JSON. Retries stop after a minute; a batch job
// should not hang on its notification.
func (w *Webhook) Send(ctx context.Context, payload interface{}) error {
	resp, err := w.client.Do(ctx, httpclient.RequestOptions{
		Method:     http.MethodPost,
		URL:        w.url,
		Body:       payload,
		MaxElapsed: time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to notify webhook: %w", err)
	}

	w.logger.Info("Webhook notified", zap.Int("status_code", resp.StatusCode))
	return nil
}
