package events

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/shinigamiapp/automirror/pkg/models"
)

const publishQueueSize = 256

// Publisher is fire-and-forget by design (§9): Publish never blocks the
// caller, and an overflowing queue drops the event rather than stalling a
// sync tick.
type Publisher struct {
	Hub *Hub

	busBaseURL string
	busKey     string
	http       *http.Client

	queue chan models.Event
}

func NewPublisher(hub *Hub, busBaseURL, busKey string) *Publisher {
	p := &Publisher{
		Hub:        hub,
		busBaseURL: busBaseURL,
		busKey:     busKey,
		http:       &http.Client{Timeout: 5 * time.Second},
		queue:      make(chan models.Event, publishQueueSize),
	}
	go p.loop()
	return p
}

// Publish enqueues an event for best-effort delivery. It never blocks: an
// overflowing queue drops the event and logs it.
func (p *Publisher) Publish(eventType, seriesExternalID string, data any) {
	ev := models.Event{
		Type:             eventType,
		SeriesExternalID: seriesExternalID,
		Data:             data,
		EventVersion:     models.EventVersion,
		Timestamp:        time.Now().UTC(),
	}
	select {
	case p.queue <- ev:
	default:
		log.Printf("[events] queue full, dropping %s for %s", eventType, seriesExternalID)
	}
}

func (p *Publisher) loop() {
	for ev := range p.queue {
		p.Hub.BroadcastJSON(ev)
		p.forward(ev)
	}
}

// forward best-effort dispatches the event to the external bus on both the
// global channel and the series-scoped one. Failures are logged and
// swallowed — never on the critical sync path.
func (p *Publisher) forward(ev models.Event) {
	if p.busBaseURL == "" {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}

	for _, channel := range []string{"list", ev.SeriesExternalID} {
		if channel == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.busBaseURL+"/publish/"+channel, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
			if p.busKey != "" {
				req.Header.Set("X-API-Key", p.busKey)
			}
			if resp, err := p.http.Do(req); err == nil {
				resp.Body.Close()
			} else {
				log.Printf("[events] publish to bus failed for channel %s: %v", channel, err)
			}
		}
		cancel()
	}
}
