package identify

import (
	"context"
	"strings"

	"github.com/biid/pointterminal/internal/apperrors"
	"github.com/biid/pointterminal/internal/models"
)

// ManualStrategy resolves a member id the operator typed in.
type ManualStrategy struct {
	reader profileReader
}

func (s *ManualStrategy) Method() string {
	return models.IdentifyMethodManual
}

func (s *ManualStrategy) Lookup(ctx context.Context, code string) (models.Customer, error) {
	memberID := strings.ToUpper(strings.TrimSpace(code))
	if memberID == "" {
		return models.Customer{}, apperrors.ErrCodeUnreadable
	}

	return s.reader.GetProfile(ctx, memberID)
}
