package core

import (
	"testing"
	"time"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		in       float64
		decimals int
		out      float64
	}{
		{10.129, 2, 10.12},
		{10.12, 2, 10.12},
		{10, 2, 10},
		{0.29, 2, 0.29},
		{1.999, 2, 1.99},
		{-1.239, 2, -1.23},
		{5.5, 0, 5},
		{123.456789, 4, 123.4567},
	}
	for _, tc := range cases {
		if got := Truncate(tc.in, tc.decimals); got != tc.out {
			t.Fatalf("Truncate(%v, %d) = %v, want %v", tc.in, tc.decimals, got, tc.out)
		}
	}
}

func TestBaseCap(t *testing.T) {
	cases := []struct {
		name string
		info RoundInfo
		cap  float64
		ok   bool
	}{
		{"close cap preferred", RoundInfo{RoundPOLCloseCapPerProject: Float(100), CumulativePOLCapPerProject: Float(500)}, 100, true},
		{"cumulative fallback", RoundInfo{CumulativePOLCapPerProject: Float(500)}, 500, true},
		{"explicit zero close cap", RoundInfo{RoundPOLCloseCapPerProject: Float(0), CumulativePOLCapPerProject: Float(500)}, 0, true},
		{"no cap", RoundInfo{}, 0, false},
	}
	for _, tc := range cases {
		got, ok := tc.info.BaseCap()
		if got != tc.cap || ok != tc.ok {
			t.Fatalf("%s: got (%v, %v), want (%v, %v)", tc.name, got, ok, tc.cap, tc.ok)
		}
	}
}

func TestRoundVariants(t *testing.T) {
	end := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rounds := []Round{
		QfRound{RoundInfo: RoundInfo{RoundNumber: 1, EndDate: end}},
		EarlyAccessRound{RoundInfo: RoundInfo{RoundNumber: 2, EndDate: end}},
	}
	for i, r := range rounds {
		if r.Info().RoundNumber != i+1 {
			t.Fatalf("round %d: unexpected number %d", i, r.Info().RoundNumber)
		}
		if !r.Info().EndedBefore(end.Add(time.Second)) || r.Info().EndedBefore(end) {
			t.Fatalf("round %d: EndedBefore must be strict", i)
		}
	}
}

func TestDonationHelpers(t *testing.T) {
	d := Donation{Amount: 10, FromTokenAmount: Float(3)}
	if d.DisplayAmount() != 3 {
		t.Fatalf("expected from-token amount, got %v", d.DisplayAmount())
	}
	d.FromTokenAmount = nil
	if d.DisplayAmount() != 10 {
		t.Fatalf("expected amount, got %v", d.DisplayAmount())
	}
	d.EarlyAccessRound = &EarlyAccessRound{RoundInfo: RoundInfo{RoundNumber: 4}}
	if d.RoundNumber() != 4 {
		t.Fatalf("expected round 4, got %d", d.RoundNumber())
	}
	if !DonationSwapPending.IsPending() || DonationFailed.IsPending() {
		t.Fatalf("unexpected pending classification")
	}
}
