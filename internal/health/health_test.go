package health

import (
	"context"
	"errors"
	"testing"
)

type mockPinger struct {
	pingErr error
}

func (m *mockPinger) Ping(context.Context) error {
	return m.pingErr
}

type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		pinger   Pinger
		policy   PolicyChecker
		ready    bool
		database string
		pol      string
	}{
		{"nothing configured", nil, nil, true, StatusSkipped, StatusSkipped},
		{"all healthy", &mockPinger{}, &mockPolicyChecker{}, true, StatusOK, StatusOK},
		{"ping fails", &mockPinger{pingErr: errors.New("connection refused")}, nil, false, StatusFailing, StatusSkipped},
		{"policy fails", nil, &mockPolicyChecker{healthErr: errors.New("rego compile failed")}, false, StatusSkipped, StatusFailing},
		{"ping ok policy fails", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("policy error")}, false, StatusOK, StatusFailing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewChecker(tt.pinger, tt.policy).Check(context.Background())
			if r.Ready != tt.ready {
				t.Errorf("ready = %v, want %v", r.Ready, tt.ready)
			}
			if r.Components["database"] != tt.database || r.Components["policy"] != tt.pol {
				t.Errorf("components = %v", r.Components)
			}
		})
	}
}
