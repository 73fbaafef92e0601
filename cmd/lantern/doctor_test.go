package main

import (
	"testing"

	"github.com/lantern-c2/lantern/internal/doctor"
	"github.com/lantern-c2/lantern/internal/testutil"
)

func renderDoctorString(results []doctor.Result) string {
	out, buf := testWriter()
	renderDoctor(out, results)

	return buf.String()
}

func TestDoctorOutput_Golden(t *testing.T) {
	tests := []struct {
		name    string
		golden  string
		results []doctor.Result
	}{
		{
			name:   "all pass",
			golden: "doctor_all_pass.golden",
			results: []doctor.Result{
				{Name: "Server", Status: doctor.StatusPass, Message: "https://c2.example.test"},
				{Name: "API Connectivity", Status: doctor.StatusPass, Message: "reachable (42ms)"},
				{Name: "Authentication", Status: doctor.StatusPass, Message: "ada, admin (via keyring)"},
				{Name: "Realtime Channel", Status: doctor.StatusPass, Message: "connected, up to 10 reconnect attempts"},
				{Name: "CLI Version", Status: doctor.StatusPass, Message: "v0.4.2 (latest)"},
			},
		},
		{
			name:   "mixed",
			golden: "doctor_mixed.golden",
			results: []doctor.Result{
				{Name: "Server", Status: doctor.StatusPass, Message: "https://c2.example.test"},
				{Name: "API Connectivity", Status: doctor.StatusPass, Message: "reachable (42ms)"},
				{Name: "Authentication", Status: doctor.StatusFail, Message: "Not authenticated", Detail: "Run 'lantern auth login' to authenticate"},
				{Name: "Realtime Channel", Status: doctor.StatusWarn, Message: "Skipped (no token)"},
				{Name: "CLI Version", Status: doctor.StatusWarn, Message: "v0.4.1 (v0.4.2 available)", Detail: "Run 'lantern update' to update"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertGolden(t, renderDoctorString(tt.results), tt.golden)
		})
	}
}
