package broker

import "errors"

var (
	ErrZeroSize            = errors.New("order size is zero")
	ErrUnknownInstrument   = errors.New("unknown instrument")
	ErrNoPrice             = errors.New("instrument has no price yet")
	ErrInsufficientMargin  = errors.New("insufficient margin")
	ErrInvalidTrigger      = errors.New("invalid trigger price")
	ErrUnknownTrade        = errors.New("unknown trade")
	ErrPositionCapExceeded = errors.New("position cap exceeded")
	ErrNoPositionToClose   = errors.New("no position to close")
	ErrExitBeforeEntry     = errors.New("exit index before entry index")
)

// RejectReason classifies a rejection for journaling and reporting.
type RejectReason int

const (
	ReasonNone RejectReason = iota
	ReasonZeroSize
	ReasonUnknownInstrument
	ReasonNoPrice
	ReasonInsufficientMargin
	ReasonInvalidTrigger
	ReasonUnknownTrade
	ReasonPositionCapExceeded
	ReasonNoPositionToClose
	ReasonOther
)

var reasonNames = map[RejectReason]string{
	ReasonNone:                "None",
	ReasonZeroSize:            "ZeroSize",
	ReasonUnknownInstrument:   "UnknownInstrument",
	ReasonNoPrice:             "NoPrice",
	ReasonInsufficientMargin:  "InsufficientMargin",
	ReasonInvalidTrigger:      "InvalidTrigger",
	ReasonUnknownTrade:        "UnknownTrade",
	ReasonPositionCapExceeded: "PositionCapExceeded",
	ReasonNoPositionToClose:   "NoPositionToClose",
	ReasonOther:               "Other",
}

func (r RejectReason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "Unknown"
}

// Reason maps err to its RejectReason, unwrapping as needed.
func Reason(err error) RejectReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrZeroSize):
		return ReasonZeroSize
	case errors.Is(err, ErrUnknownInstrument):
		return ReasonUnknownInstrument
	case errors.Is(err, ErrNoPrice):
		return ReasonNoPrice
	case errors.Is(err, ErrInsufficientMargin):
		return ReasonInsufficientMargin
	case errors.Is(err, ErrInvalidTrigger):
		return ReasonInvalidTrigger
	case errors.Is(err, ErrUnknownTrade):
		return ReasonUnknownTrade
	case errors.Is(err, ErrPositionCapExceeded):
		return ReasonPositionCapExceeded
	case errors.Is(err, ErrNoPositionToClose):
		return ReasonNoPositionToClose
	default:
		return ReasonOther
	}
}
