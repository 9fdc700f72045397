// Package terminal implements the transaction state machine of one physical
// terminal. Events from the operator, the processor and the countdown timers
// are applied one at a time under a single mutex, so a TransactionSession is
// never mutated concurrently.
package terminal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/biid/pointterminal/internal/apperrors"
	"github.com/biid/pointterminal/internal/ledger"
	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/models"
	"github.com/biid/pointterminal/internal/service/processor"
)

const (
	DefaultIdleTimeout     = 90 * time.Second
	DefaultIdentifyTimeout = 30 * time.Second
	DefaultPaymentDisplay  = 10 * time.Second
	DefaultGrantDisplay    = 8 * time.Second
)

// DefaultQuickAmounts are the amount presets offered on the entry screen.
var DefaultQuickAmounts = []int64{100, 500, 1000, 3000, 5000, 10000}

type processorAPI interface {
	Submit(ctx context.Context, session models.TransactionSession) (processor.Outcome, error)
}

type identifierAPI interface {
	Lookup(ctx context.Context, method string, code string) (models.Customer, error)
}

type Config struct {
	TerminalID string

	IdleTimeout     time.Duration
	IdentifyTimeout time.Duration
	PaymentDisplay  time.Duration
	GrantDisplay    time.Duration

	QuickAmounts []int64

	// OnSettled is invoked whenever a foreground submission gets a definite
	// answer from the ledger. The sync agent uses it as a connectivity signal.
	OnSettled func()
}

// Snapshot is a point-in-time copy of the machine for the UI. StepRemaining
// reports the active countdown: the read window in identify, the display
// countdown on the completed screen, the idle countdown elsewhere.
type Snapshot struct {
	models.TerminalSession

	Mode          string
	Customer      *models.Customer
	Session       *models.TransactionSession
	RedeemEnabled bool
	MaxRedeemable int64
	QuickAmounts  []int64
	IdentifiedVia string
	ReadMethod    string
	Outcome       *processor.Outcome
}

type Machine struct {
	mu sync.Mutex

	cfg   Config
	state string
	mode  string

	customer      *models.Customer
	session       *models.TransactionSession
	redeemEnabled bool
	identifiedVia string
	readMethod    string

	// acknowledged is set when the last failure was an explicit rejection.
	// A retry after an acknowledged failure is a new logical attempt and
	// must mint a fresh idempotency key.
	acknowledged bool
	lastOutcome  *processor.Outcome

	idle    *Countdown
	step    *Countdown
	display *Countdown

	processor  processorAPI
	identifier identifierAPI
	logger     logger.Logger
}

func NewMachine(cfg Config, proc processorAPI, identifier identifierAPI, logger logger.Logger) *Machine {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.IdentifyTimeout <= 0 {
		cfg.IdentifyTimeout = DefaultIdentifyTimeout
	}
	if cfg.PaymentDisplay <= 0 {
		cfg.PaymentDisplay = DefaultPaymentDisplay
	}
	if cfg.GrantDisplay <= 0 {
		cfg.GrantDisplay = DefaultGrantDisplay
	}
	if len(cfg.QuickAmounts) == 0 {
		cfg.QuickAmounts = DefaultQuickAmounts
	}

	m := &Machine{
		cfg:        cfg,
		state:      models.StateIdentify,
		mode:       models.ModePayment,
		processor:  proc,
		identifier: identifier,
		logger:     logger,
	}
	m.idle = NewCountdown(cfg.IdleTimeout, m.onIdleExpired)
	m.step = NewCountdown(cfg.IdentifyTimeout, m.onReadExpired)
	m.display = NewCountdown(cfg.PaymentDisplay, m.onDisplayExpired)

	return m
}

// SwitchMode selects payment or grant mode. Only the home screen offers the
// choice, so switching is valid only before a customer is identified.
func (m *Machine) SwitchMode(mode string) error {
	if mode != models.ModePayment && mode != models.ModePointsGrant {
		return fmt.Errorf("unknown terminal mode %q", mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateIdentify {
		return apperrors.ErrInvalidTransition
	}

	m.mode = mode
	return nil
}

// BeginRead opens the identification window for a contactless or scan read.
// The window expires silently after the identify step timeout.
func (m *Machine) BeginRead(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateIdentify {
		return apperrors.ErrInvalidTransition
	}

	m.readMethod = method
	m.step.Start()
	return nil
}

// Identify resolves a read into a customer and opens a draft session.
// A lookup failure keeps the machine in identify and creates nothing.
func (m *Machine) Identify(ctx context.Context, method string, code string) (models.Customer, error) {
	m.mu.Lock()
	if m.state != models.StateIdentify {
		m.mu.Unlock()
		return models.Customer{}, apperrors.ErrInvalidTransition
	}
	mode := m.mode
	m.mu.Unlock()

	customer, err := m.identifier.Lookup(ctx, method, code)
	if err != nil {
		return models.Customer{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateIdentify {
		return models.Customer{}, apperrors.ErrInvalidTransition
	}

	session := &models.TransactionSession{
		CustomerID: customer.ID,
		Mode:       mode,
		Status:     models.SessionStatusDraft,
		CreatedAt:  time.Now(),
	}
	switch mode {
	case models.ModePointsGrant:
		session.GrantReason = models.GrantReasonPurchase
	default:
		session.AccrualEnabled = true
	}

	m.customer = &customer
	m.session = session
	m.identifiedVia = method
	m.readMethod = ""
	m.redeemEnabled = false
	m.lastOutcome = nil
	m.state = models.StateAmountEntry
	m.step.Stop()
	m.idle.Start()

	m.logger.Info("Customer identified, session opened",
		"customer_id", customer.ID, "method", method, "mode", mode)
	return customer, nil
}

// SetAmount sets the gross amount of the draft. In grant mode the amount is
// the number of points to grant. A stale redemption that now exceeds the new
// maximum is clamped down.
func (m *Machine) SetAmount(amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateAmountEntry {
		return apperrors.ErrInvalidTransition
	}
	if amount < 0 {
		return apperrors.ErrAmountInvalid
	}

	m.session.GrossAmount = amount
	m.recalc()
	m.idle.Start()
	return nil
}

// EnableRedemption toggles spending points against the amount. Enabling
// defaults the redemption to the full maximum; disabling zeroes it.
func (m *Machine) EnableRedemption(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateAmountEntry || m.mode != models.ModePayment {
		return apperrors.ErrInvalidTransition
	}

	m.redeemEnabled = enabled
	if enabled {
		m.session.PointsRedeemed = ledger.MaxRedeemable(m.customer.PointBalance, m.session.GrossAmount)
	} else {
		m.session.PointsRedeemed = 0
	}
	m.recalc()
	m.idle.Start()
	return nil
}

// SetPointsRedeemed edits the redemption downward. It can never exceed the
// current maximum.
func (m *Machine) SetPointsRedeemed(points int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateAmountEntry || m.mode != models.ModePayment {
		return apperrors.ErrInvalidTransition
	}
	if !m.redeemEnabled {
		return apperrors.ErrInvalidTransition
	}
	if points < 0 {
		return apperrors.ErrAmountInvalid
	}
	if points > ledger.MaxRedeemable(m.customer.PointBalance, m.session.GrossAmount) {
		return apperrors.ErrRedeemExceedsMax
	}

	m.session.PointsRedeemed = points
	m.recalc()
	m.idle.Start()
	return nil
}

// SetAccrual toggles earning points on the net amount.
func (m *Machine) SetAccrual(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateAmountEntry || m.mode != models.ModePayment {
		return apperrors.ErrInvalidTransition
	}

	m.session.AccrualEnabled = enabled
	m.recalc()
	m.idle.Start()
	return nil
}

// SetGrantReason records why points are being granted.
func (m *Machine) SetGrantReason(reason string) error {
	switch reason {
	case models.GrantReasonPurchase, models.GrantReasonGift, models.GrantReasonBonus, models.GrantReasonOther:
	default:
		return fmt.Errorf("unknown grant reason %q", reason)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateAmountEntry || m.mode != models.ModePointsGrant {
		return apperrors.ErrInvalidTransition
	}

	m.session.GrantReason = reason
	m.idle.Start()
	return nil
}

// Confirm moves a payment draft to the confirmation screen. A zero amount is
// never confirmable. The grant flow has no confirmation step.
func (m *Machine) Confirm() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateAmountEntry || m.mode != models.ModePayment {
		return apperrors.ErrInvalidTransition
	}
	if m.session.GrossAmount <= 0 {
		return apperrors.ErrAmountInvalid
	}

	m.recalc()
	m.session.Status = models.SessionStatusConfirmed
	m.state = models.StateConfirm
	m.idle.Start()
	return nil
}

// Edit returns from confirmation to amount entry. Every entered value is
// preserved.
func (m *Machine) Edit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateConfirm {
		return apperrors.ErrInvalidTransition
	}

	m.session.Status = models.SessionStatusDraft
	m.state = models.StateAmountEntry
	m.idle.Start()
	return nil
}

// Cancel discards the draft and returns to identify. Cancellation is only
// meaningful before processing begins.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case models.StateAmountEntry, models.StateConfirm:
		m.goHome()
		return nil
	case models.StateIdentify:
		return apperrors.ErrNoActiveSession
	default:
		return apperrors.ErrInvalidTransition
	}
}

// Submit hands the session to the processor. The idempotency key is minted
// here, on first entry to processing, and survives retries of this attempt.
// Payment sessions submit from the confirmation screen, grant sessions
// directly from amount entry.
func (m *Machine) Submit(ctx context.Context) (processor.Outcome, error) {
	m.mu.Lock()

	var valid bool
	switch m.mode {
	case models.ModePointsGrant:
		valid = m.state == models.StateAmountEntry
	default:
		valid = m.state == models.StateConfirm
	}
	if !valid {
		m.mu.Unlock()
		return processor.Outcome{}, apperrors.ErrInvalidTransition
	}
	if m.session.GrossAmount <= 0 {
		m.mu.Unlock()
		return processor.Outcome{}, apperrors.ErrAmountInvalid
	}

	m.recalc()
	if m.session.IdempotencyKey == "" {
		m.session.IdempotencyKey = uuid.NewString()
	}

	return m.beginProcessing(ctx)
}

// Retry resubmits a failed session. The idempotency key is reused only when
// no prior submission was acknowledged; after an explicit rejection the retry
// is a new attempt with a fresh key.
func (m *Machine) Retry(ctx context.Context) (processor.Outcome, error) {
	m.mu.Lock()

	if m.state != models.StateFailed {
		m.mu.Unlock()
		return processor.Outcome{}, apperrors.ErrInvalidTransition
	}

	if m.acknowledged {
		m.session.IdempotencyKey = uuid.NewString()
	}

	return m.beginProcessing(ctx)
}

// Abandon leaves the failed screen without another attempt. A session already
// handed to the offline queue stays queued; abandoning only clears the screen.
func (m *Machine) Abandon() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateFailed {
		return apperrors.ErrInvalidTransition
	}

	m.goHome()
	return nil
}

// Home returns from the completed screen to identify.
func (m *Machine) Home() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateCompleted {
		return apperrors.ErrInvalidTransition
	}

	m.goHome()
	return nil
}

// Snapshot returns a copy of the machine for the UI.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		TerminalSession: models.TerminalSession{
			TerminalID:    m.cfg.TerminalID,
			State:         m.state,
			StepRemaining: m.activeRemaining(),
		},
		Mode:          m.mode,
		RedeemEnabled: m.redeemEnabled,
		QuickAmounts:  m.cfg.QuickAmounts,
		IdentifiedVia: m.identifiedVia,
		ReadMethod:    m.readMethod,
	}
	if m.customer != nil {
		customer := *m.customer
		snap.Customer = &customer
		if m.session != nil {
			snap.MaxRedeemable = ledger.MaxRedeemable(customer.PointBalance, m.session.GrossAmount)
		}
	}
	if m.session != nil {
		session := *m.session
		snap.Session = &session
	}
	if m.lastOutcome != nil {
		outcome := *m.lastOutcome
		snap.Outcome = &outcome
	}

	return snap
}

// beginProcessing is entered with the mutex held and releases it around the
// processor call, so the machine stays observable while the submission is in
// flight. No event can cancel a processing session.
func (m *Machine) beginProcessing(ctx context.Context) (processor.Outcome, error) {
	m.session.Status = models.SessionStatusProcessing
	m.state = models.StateProcessing
	m.idle.Stop()
	m.step.Stop()
	session := *m.session
	m.mu.Unlock()

	outcome, err := m.processor.Submit(ctx, session)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle(outcome, err)
	return outcome, err
}

func (m *Machine) settle(outcome processor.Outcome, err error) {
	o := outcome
	m.lastOutcome = &o

	switch {
	case err == nil && outcome.Code == processor.OutcomeCompleted:
		m.session.Status = models.SessionStatusCompleted
		m.state = models.StateCompleted
		m.acknowledged = false
		if m.customer != nil {
			m.customer.PointBalance = outcome.BalanceAfter
		}

		display := m.cfg.PaymentDisplay
		if m.mode == models.ModePointsGrant {
			display = m.cfg.GrantDisplay
		}
		m.display.StartFor(display)
		m.notifySettled()

	case err == nil && outcome.Code == processor.OutcomeRejected:
		m.session.Status = models.SessionStatusFailed
		m.state = models.StateFailed
		m.acknowledged = true
		m.idle.Start()
		m.notifySettled()

	default:
		// Timeout or a local failure. Either way no acknowledgment was
		// received, so a retry keeps the same idempotency key.
		if outcome.Queued {
			m.session.Status = models.SessionStatusQueued
		} else {
			m.session.Status = models.SessionStatusFailed
		}
		m.state = models.StateFailed
		m.acknowledged = false
		m.idle.Start()
	}
}

func (m *Machine) notifySettled() {
	if m.cfg.OnSettled != nil {
		go m.cfg.OnSettled()
	}
}

// recalc reapplies the calculator to the draft. Grant sessions have no
// redemption and no accrual: the entered amount is the granted points.
func (m *Machine) recalc() {
	if m.mode == models.ModePointsGrant {
		m.session.PointsRedeemed = 0
		m.session.NetAmount = m.session.GrossAmount
		m.session.PointsEarned = m.session.GrossAmount
		return
	}
	ledger.Recalculate(m.session, m.customer.PointBalance)
}

func (m *Machine) goHome() {
	m.state = models.StateIdentify
	m.session = nil
	m.customer = nil
	m.redeemEnabled = false
	m.identifiedVia = ""
	m.readMethod = ""
	m.lastOutcome = nil
	m.acknowledged = false
	m.idle.Stop()
	m.step.Stop()
	m.display.Stop()
}

func (m *Machine) activeRemaining() time.Duration {
	switch m.state {
	case models.StateIdentify:
		return m.step.Remaining()
	case models.StateCompleted:
		return m.display.Remaining()
	default:
		return m.idle.Remaining()
	}
}

// onIdleExpired returns the terminal to identify after an input lull. The
// expiry is silent: logged for audit, never shown as an error. A session that
// already reached the offline queue is durable and unaffected.
func (m *Machine) onIdleExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == models.StateIdentify || m.state == models.StateProcessing {
		return
	}

	m.logger.Info("Session expired after idle timeout", "state", m.state)
	m.goHome()
}

func (m *Machine) onReadExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateIdentify || m.readMethod == "" {
		return
	}

	m.logger.Info("Identification read window expired", "method", m.readMethod)
	m.readMethod = ""
}

func (m *Machine) onDisplayExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.StateCompleted {
		return
	}

	m.goHome()
}
