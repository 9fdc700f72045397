package models

import (
	"time"
)

const (
	StateIdentify    = "IDENTIFY"
	StateAmountEntry = "AMOUNT_ENTRY"
	StateConfirm     = "CONFIRM"
	StateProcessing  = "PROCESSING"
	StateCompleted   = "COMPLETED"
	StateFailed      = "FAILED"
)

const (
	IdentifyMethodNFC    = "nfc"
	IdentifyMethodQR     = "qr"
	IdentifyMethodManual = "manual"
)

// TerminalSession is the countdown context of one terminal: its identity, the
// current state machine state and how long the active step may still take.
type TerminalSession struct {
	TerminalID    string
	State         string
	StepRemaining time.Duration
}
