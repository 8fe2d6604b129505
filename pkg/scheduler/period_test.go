package scheduler

import (
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		token   string
		wantErr bool
	}{
		{token: "hourly"},
		{token: "daily"},
		{token: "weekly"},
		{token: "monthly"},
		{token: "HOURLY"},
		{token: " daily "},
		{token: "@every 15m"},
		{token: "0 3 * * *"},
		{token: "@daily"},
		{token: "", wantErr: true},
		{token: "fortnightly", wantErr: true},
		{token: "not a cron", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			_, err := ParsePeriod(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParsePeriod(%q) error = %v, wantErr %v", tt.token, err, tt.wantErr)
			}
		})
	}
}

func TestPeriodNextFixedStep(t *testing.T) {
	anchor := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		token string
		want  time.Time
	}{
		{token: "hourly", want: anchor.Add(time.Hour)},
		{token: "daily", want: anchor.Add(24 * time.Hour)},
		{token: "weekly", want: anchor.Add(7 * 24 * time.Hour)},
		{token: "monthly", want: time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)},
		{token: "@every 15m", want: anchor.Add(15 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			p, err := ParsePeriod(tt.token)
			if err != nil {
				t.Fatalf("ParsePeriod(%q) error = %v", tt.token, err)
			}
			got := p.Next(anchor)
			if !got.Equal(tt.want) {
				t.Errorf("Next(%v) = %v, want %v", anchor, got, tt.want)
			}
		})
	}
}

func TestPeriodNextCronExpression(t *testing.T) {
	p, err := ParsePeriod("0 3 * * *")
	if err != nil {
		t.Fatalf("ParsePeriod() error = %v", err)
	}

	anchor := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	got := p.Next(anchor)
	want := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", anchor, got, want)
	}
}

func TestPeriodStepIsExact(t *testing.T) {
	// An hourly job fires exactly one hour after the previous scheduled
	// time, indefinitely, regardless of when the run actually happened.
	p, err := ParsePeriod("hourly")
	if err != nil {
		t.Fatalf("ParsePeriod() error = %v", err)
	}

	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 48; i++ {
		next := p.Next(at)
		if diff := next.Sub(at); diff != time.Hour {
			t.Fatalf("cycle %d advanced by %v, want %v", i, diff, time.Hour)
		}
		at = next
	}
}
