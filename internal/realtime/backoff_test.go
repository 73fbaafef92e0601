package realtime

import (
	"testing"
	"time"
)

func TestBackoffDelays(t *testing.T) {
	tests := []struct {
		name string
		base time.Duration
		max  time.Duration
		n    int
		want []time.Duration
	}{
		{
			name: "doubles from base",
			base: time.Second,
			max:  5 * time.Minute,
			n:    4,
			want: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second},
		},
		{
			name: "capped at max",
			base: time.Second,
			max:  5 * time.Second,
			n:    5,
			want: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second},
		},
		{
			name: "zero max is uncapped",
			base: time.Minute,
			max:  0,
			n:    3,
			want: []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute},
		},
		{
			name: "max below base",
			base: 3 * time.Second,
			max:  time.Second,
			n:    2,
			want: []time.Duration{3 * time.Second, 3 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BackoffDelays(tt.base, tt.max, tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("BackoffDelays() = %v, want %v", got, tt.want)
			}

			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("delay %d = %v, want %v", i+1, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBackoff_ResetRestartsAtBase(t *testing.T) {
	b := newBackoff(time.Second, time.Minute)

	b.NextBackOff()
	b.NextBackOff()
	b.Reset()

	if got := b.NextBackOff(); got != time.Second {
		t.Errorf("NextBackOff() after Reset = %v, want 1s", got)
	}
}

func TestBackoffDelays_DefaultScheduleFollowsFormula(t *testing.T) {
	cfg := Config{}.WithDefaults()

	delays := BackoffDelays(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay, cfg.MaxReconnectAttempts)
	if len(delays) != DefaultMaxReconnectAttempts {
		t.Fatalf("got %d delays, want %d", len(delays), DefaultMaxReconnectAttempts)
	}

	for k := 1; k <= len(delays); k++ {
		want := cfg.ReconnectBaseDelay << (k - 1)
		if delays[k-1] != want {
			t.Errorf("attempt %d: delay %v, want %v", k, delays[k-1], want)
		}
	}
}

func TestConfig_WithDefaultsCeiling(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want time.Duration
	}{
		{name: "finite cap has no ceiling", cfg: Config{}, want: 0},
		{name: "unlimited gets a ceiling", cfg: Config{MaxReconnectAttempts: -1}, want: DefaultUnlimitedMaxDelay},
		{name: "explicit ceiling kept", cfg: Config{MaxReconnectAttempts: -1, ReconnectMaxDelay: time.Minute}, want: time.Minute},
		{name: "negative ceiling cleared", cfg: Config{ReconnectMaxDelay: -time.Second}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.WithDefaults().ReconnectMaxDelay; got != tt.want {
				t.Errorf("ReconnectMaxDelay = %v, want %v", got, tt.want)
			}
		})
	}
}
