package triage

import (
	"errors"
	"fmt"
)

// MaxSummaryLen caps the verdict summary, roughly 60 words.
const MaxSummaryLen = 400

// Category is the issue classification produced by analysis.
type Category string

const (
	CategoryBilling        Category = "billing"
	CategoryBug            Category = "bug"
	CategoryAccount        Category = "account"
	CategoryFeatureRequest Category = "feature_request"
	CategoryHowTo          Category = "how_to"
	CategoryOther          Category = "other"
)

// Urgency is the assessed priority of a ticket.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Verdict is the structured output of one analysis call.
type Verdict struct {
	Summary    string   `json:"summary"`
	Category   Category `json:"category"`
	Urgency    Urgency  `json:"urgency"`
	Reply      string   `json:"suggested_reply"`
	FollowUps  []string `json:"follow_up_questions"`
	Confidence float64  `json:"confidence"`
	TokenUsage string   `json:"token_usage,omitempty"`
}

// Validate checks the verdict against the response schema. A backend
// response failing validation is treated as a call failure.
func (v *Verdict) Validate() error {
	var errs []error

	if v.Summary == "" {
		errs = append(errs, errors.New("summary is required"))
	}
	if len(v.Summary) > MaxSummaryLen {
		errs = append(errs, fmt.Errorf("summary exceeds %d characters", MaxSummaryLen))
	}

	switch v.Category {
	case CategoryBilling, CategoryBug, CategoryAccount, CategoryFeatureRequest, CategoryHowTo, CategoryOther:
	default:
		errs = append(errs, fmt.Errorf("unknown category %q", v.Category))
	}

	switch v.Urgency {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
	default:
		errs = append(errs, fmt.Errorf("unknown urgency %q", v.Urgency))
	}

	if v.Reply == "" {
		errs = append(errs, errors.New("suggested_reply is required"))
	}

	if v.Confidence < 0 || v.Confidence > 1 {
		errs = append(errs, fmt.Errorf("confidence %v outside [0,1]", v.Confidence))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
