// Package model defines inference model options, capability tiers, and
// provider quota state.
package model

import (
	"errors"
	"time"
)

// Tier is a capability tier. Every model belongs to exactly one tier.
type Tier string

const (
	TierFast     Tier = "FAST"
	TierThinking Tier = "THINKING"
	TierPremium  Tier = "PREMIUM"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierFast || t == TierThinking || t == TierPremium
}

// Option is one selectable model.
type Option struct {
	ID       string `json:"id" yaml:"id"`
	Provider string `json:"provider" yaml:"provider"`
	Tier     Tier   `json:"tier" yaml:"tier"`
}

// Validate checks that an option is complete.
func (o *Option) Validate() error {
	if o.ID == "" {
		return errors.New("model id is required")
	}
	if o.Provider == "" {
		return errors.New("model provider is required")
	}
	if !o.Tier.Valid() {
		return errors.New("model tier must be FAST, THINKING or PREMIUM")
	}
	return nil
}

// QuotaStatus is the last observed quota state for one model.
type QuotaStatus struct {
	ModelID     string    `json:"model_id"`
	Available   bool      `json:"available"`
	LastChecked time.Time `json:"last_checked"`
	Error       string    `json:"error,omitempty"`
}

// Price is the per-token price for one model, per million tokens.
type Price struct {
	InputPerMTok  float64 `json:"input_per_mtok" yaml:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok" yaml:"output_per_mtok"`
}

// Cost converts token usage to USD using this price.
func (p Price) Cost(tokensIn, tokensOut int64) float64 {
	return float64(tokensIn)/1e6*p.InputPerMTok + float64(tokensOut)/1e6*p.OutputPerMTok
}
