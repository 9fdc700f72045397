package identify

import (
	"context"
	"strings"

	"github.com/biid/pointterminal/internal/apperrors"
	"github.com/biid/pointterminal/internal/models"
)

// Member QR codes carry the member id behind a fixed scheme prefix.
const qrScheme = "biid:"

// QRStrategy resolves a scanned member code.
type QRStrategy struct {
	reader profileReader
}

func (s *QRStrategy) Method() string {
	return models.IdentifyMethodQR
}

func (s *QRStrategy) Lookup(ctx context.Context, code string) (models.Customer, error) {
	raw := strings.TrimSpace(code)
	if !strings.HasPrefix(raw, qrScheme) {
		return models.Customer{}, apperrors.ErrCodeUnreadable
	}

	memberID := strings.TrimPrefix(raw, qrScheme)
	if memberID == "" {
		return models.Customer{}, apperrors.ErrCodeUnreadable
	}

	return s.reader.GetProfile(ctx, memberID)
}
