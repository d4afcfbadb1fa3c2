// Package notify delivers fire-and-forget conversion events to a webhook.
// Delivery failures are logged and swallowed; notifications must never block
// or fail the orchestration path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"converter/models"
)

const deliveryTimeout = 10 * time.Second

// Event is the JSON body posted to the webhook.
type Event struct {
	ConversionID string `json:"conversionId"`
	OwnerID      string `json:"ownerId,omitempty"`
	SourceFormat string `json:"sourceFormat"`
	TargetFormat string `json:"targetFormat"`
	Status       string `json:"status"`
	OutputURL    string `json:"outputUrl,omitempty"`
	Error        string `json:"error,omitempty"`
}

type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook returns a sink posting to url. An empty url disables delivery.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: deliveryTimeout},
	}
}

// ConversionCompleted announces a successful conversion.
func (w *Webhook) ConversionCompleted(job *models.Job, outputURL string) {
	w.deliver(Event{
		ConversionID: job.RecordID,
		OwnerID:      job.OwnerID,
		SourceFormat: job.SourceFormat,
		TargetFormat: job.TargetFormat,
		Status:       string(models.StatusCompleted),
		OutputURL:    outputURL,
	})
}

// ConversionFailed announces a terminal failure.
func (w *Webhook) ConversionFailed(job *models.Job, detail string) {
	w.deliver(Event{
		ConversionID: job.RecordID,
		OwnerID:      job.OwnerID,
		SourceFormat: job.SourceFormat,
		TargetFormat: job.TargetFormat,
		Status:       string(models.StatusFailed),
		Error:        detail,
	})
}

func (w *Webhook) deliver(ev Event) {
	if w == nil || w.url == "" {
		return
	}

	go func() {
		body, err := json.Marshal(ev)
		if err != nil {
			log.Printf("[Notify] Failed to encode event for %s: %v", ev.ConversionID, err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
		if err != nil {
			log.Printf("[Notify] Failed to build request for %s: %v", ev.ConversionID, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			log.Printf("[Notify] Delivery failed for %s: %v", ev.ConversionID, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			log.Printf("[Notify] Webhook returned status %d for %s", resp.StatusCode, ev.ConversionID)
		}
	}()
}
