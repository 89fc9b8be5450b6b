package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"metacoin-ledger/internal/core/domain"
	"metacoin-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// EventTransfer is the webhook event type for a committed sendCoin.
const EventTransfer = "TRANSFER"

// Webhook request headers.
const (
	HeaderWebhookSignature = "X-MetaCoin-Signature"
	HeaderWebhookTimestamp = "X-MetaCoin-Timestamp"
)

// WebhookPayload is the JSON body POSTed to the observer.
type WebhookPayload struct {
	EventType string             `json:"event_type"`
	Data      WebhookPayloadData `json:"data"`
	Timestamp int64              `json:"timestamp"`
	Signature string             `json:"signature"`
}

// WebhookPayloadData holds the receipt details in the webhook.
type WebhookPayloadData struct {
	TxHash string `json:"tx_hash"`
	Seq    uint64 `json:"seq"`
	Topic  string `json:"topic"`
	From   string `json:"from"`
	To     string `json:"to"`
	Value  uint64 `json:"value"`
	Status string `json:"status"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookNotifier implements ports.WebhookService. Deliveries run in the
// background with a fixed backoff schedule.
type WebhookNotifier struct {
	url            string
	secret         string
	sigSvc         ports.SignatureService
	httpClient     HTTPClient
	retryIntervals []time.Duration
	wg             sync.WaitGroup
	log            zerolog.Logger
}

// NewWebhookNotifier creates a notifier that POSTs receipts to url, retrying
// up to maxRetries times with doubling intervals starting at one second.
func NewWebhookNotifier(
	url, secret string,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	maxRetries int,
	log zerolog.Logger,
) *WebhookNotifier {
	intervals := make([]time.Duration, 0, maxRetries)
	next := time.Second
	for i := 0; i < maxRetries; i++ {
		intervals = append(intervals, next)
		next *= 2
	}
	return &WebhookNotifier{
		url:            url,
		secret:         secret,
		sigSvc:         sigSvc,
		httpClient:     httpClient,
		retryIntervals: intervals,
		log:            log,
	}
}

// EnqueueWebhook signs the receipt and delivers it asynchronously.
func (s *WebhookNotifier) EnqueueWebhook(_ context.Context, receipt *domain.Receipt) error {
	ev, ok := receipt.Event()
	if !ok {
		return fmt.Errorf("receipt %s carries no transfer event", receipt.TxHash)
	}

	data := WebhookPayloadData{
		TxHash: receipt.TxHash,
		Seq:    receipt.Seq,
		Topic:  domain.TransferTopic,
		From:   domain.FormatAccountID(ev.From),
		To:     domain.FormatAccountID(ev.To),
		Value:  uint64(ev.Value),
		Status: string(receipt.Status),
	}
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal webhook data: %w", err)
	}

	ts := time.Now().Unix()
	payload := WebhookPayload{
		EventType: EventTransfer,
		Data:      data,
		Timestamp: ts,
		Signature: s.sigSvc.Sign(s.secret, WebhookSigningString(ts, dataBytes)),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliverWithRetries(payload, receipt.TxHash)
	}()
	return nil
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (s *WebhookNotifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WebhookNotifier) deliverWithRetries(payload WebhookPayload, txHash string) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("tx_hash", txHash).Msg("webhook: failed to marshal payload")
		return
	}

	for attempt := 0; attempt <= len(s.retryIntervals); attempt++ {
		if attempt > 0 {
			time.Sleep(s.retryIntervals[attempt-1])
		}

		req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(payloadBytes))
		if err != nil {
			s.log.Error().Err(err).Str("tx_hash", txHash).Msg("webhook: failed to create request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderWebhookSignature, payload.Signature)
		req.Header.Set(HeaderWebhookTimestamp, strconv.FormatInt(payload.Timestamp, 10))

		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.log.Warn().Err(err).Str("tx_hash", txHash).Int("attempt", attempt+1).Msg("webhook: delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.log.Info().Str("tx_hash", txHash).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("webhook: delivered")
			return
		}

		s.log.Warn().Str("tx_hash", txHash).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("webhook: non-2xx response, retrying")
	}

	s.log.Error().Str("tx_hash", txHash).Msg("webhook: all retry attempts exhausted")
}
