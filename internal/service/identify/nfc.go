package identify

import (
	"context"
	"strings"

	"github.com/biid/pointterminal/internal/apperrors"
	"github.com/biid/pointterminal/internal/models"
)

// NFCStrategy resolves a contactless card read. The reader hands us the card
// uid in hex; the ledger maps it to a member.
type NFCStrategy struct {
	reader profileReader
}

func (s *NFCStrategy) Method() string {
	return models.IdentifyMethodNFC
}

func (s *NFCStrategy) Lookup(ctx context.Context, code string) (models.Customer, error) {
	uid := strings.ToUpper(strings.TrimSpace(code))
	if uid == "" {
		return models.Customer{}, apperrors.ErrCodeUnreadable
	}

	return s.reader.GetProfile(ctx, uid)
}
