package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"

	"github.com/fleettrack/backend/internal/models"
)

// ReceiptQRService issues one-time QR receipts for completed payments.
// The token lives in Redis for the configured TTL and is consumed on
// first verification.
type ReceiptQRService struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewReceiptQRService(redis *redis.Client, ttl time.Duration) *ReceiptQRService {
	return &ReceiptQRService{
		redis: redis,
		ttl:   ttl,
	}
}

// GenerateReceipt returns the opaque token and a base64 PNG of its QR
// image for the given payment.
func (s *ReceiptQRService) GenerateReceipt(ctx context.Context, p *models.Payment) (string, string, error) {
	if s.redis == nil {
		return "", "", fmt.Errorf("receipt service unavailable: redis not configured")
	}

	nonce, err := generateNonce()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate receipt nonce: %w", err)
	}

	receipt := map[string]any{
		"paymentId":   p.ID,
		"referenceId": p.ReferenceID,
		"amount":      p.Amount,
		"currency":    p.Currency,
		"timestamp":   time.Now().Unix(),
		"nonce":       nonce,
	}

	jsonData, err := json.Marshal(receipt)
	if err != nil {
		return "", "", err
	}

	token := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("receipt:%s", token)
	if err := s.redis.Set(ctx, key, jsonData, s.ttl).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(token, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	qrImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	return token, qrImage, nil
}

// VerifyReceipt validates a scanned token and consumes it.
func (s *ReceiptQRService) VerifyReceipt(ctx context.Context, token string) (map[string]any, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("receipt service unavailable: redis not configured")
	}

	key := fmt.Sprintf("receipt:%s", token)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired receipt")
	}
	if err != nil {
		return nil, err
	}

	var receipt map[string]any
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return receipt, nil
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
