// Package domain contains core business types and interfaces.
//
// This file defines the plan catalog types: the named tiers and the numeric
// and boolean entitlements each one grants.
package domain

import (
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PlanName is the unique key of a catalog entry.
type PlanName string

const (
	PlanFree    PlanName = "free"
	PlanBasic   PlanName = "basic"
	PlanPremium PlanName = "premium"
)

// Unlimited is the sentinel stored in RequestsPerDay or MaxFilters to mean
// "no limit". It fits a signed 32-bit column so the catalog stays portable,
// while counters are int64 and can never overflow against it.
const Unlimited int64 = math.MaxInt32

// Valid reports whether n is one of the known plan names.
func (n PlanName) Valid() bool {
	switch n {
	case PlanFree, PlanBasic, PlanPremium:
		return true
	}
	return false
}

// IsPaid reports whether the plan requires a payment confirmation.
func (n PlanName) IsPaid() bool {
	return n == PlanBasic || n == PlanPremium
}

// Plan is an immutable catalog entry.
type Plan struct {
	Name           PlanName
	DisplayName    string
	Description    string
	PriceCents     int64
	RequestsPerDay int64
	MaxFilters     int64
	CanExport      bool
	CanShare       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasUnlimitedRequests reports whether the daily quota uses the unlimited sentinel.
func (p *Plan) HasUnlimitedRequests() bool {
	return p.RequestsPerDay >= Unlimited
}

// HasUnlimitedFilters reports whether the filter cap uses the unlimited sentinel.
func (p *Plan) HasUnlimitedFilters() bool {
	return p.MaxFilters >= Unlimited
}

// Price returns the price in euros.
func (p *Plan) Price() float64 {
	return float64(p.PriceCents) / 100
}

// FormatPrice renders the monthly price for the given locale, e.g. "9,99 €" for German.
func (p *Plan) FormatPrice(tag language.Tag) string {
	printer := message.NewPrinter(tag)
	return printer.Sprintf("%.2f €", p.Price())
}

// DefaultPlans returns the catalog seeded on a fresh deployment.
func DefaultPlans() []Plan {
	return []Plan{
		{
			Name:           PlanFree,
			DisplayName:    "Kostenlos",
			Description:    "Lead-Suche mit begrenzten Anfragen",
			PriceCents:     0,
			RequestsPerDay: 10,
			MaxFilters:     3,
		},
		{
			Name:           PlanBasic,
			DisplayName:    "Basic",
			Description:    "Mehr Anfragen, mehr Filter und CSV-Export",
			PriceCents:     999,
			RequestsPerDay: 100,
			MaxFilters:     10,
			CanExport:      true,
		},
		{
			Name:           PlanPremium,
			DisplayName:    "Premium",
			Description:    "Unbegrenzte Anfragen, Export und geteilte Listen",
			PriceCents:     2999,
			RequestsPerDay: Unlimited,
			MaxFilters:     Unlimited,
			CanExport:      true,
			CanShare:       true,
		},
	}
}
