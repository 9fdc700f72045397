package models

const (
	RankRegular = "REGULAR"
	RankSilver  = "SILVER"
	RankGold    = "GOLD"
)

// Customer is the terminal's read-only projection of a member.
// The point balance is authoritative on the remote ledger and is only
// refreshed here after a completed transaction.
type Customer struct {
	ID           string
	DisplayName  string
	PointBalance int64
	Rank         string
}
