package engine

import (
	"testing"

	"custom-device-manager/internal/model"
)

func intp(n int) *int { return &n }

func TestMatches(t *testing.T) {
	existing := model.Criteria{
		IPAddr:     "10.0.0.1",
		Direction:  "inbound",
		DstPortMin: intp(80),
		DstPortMax: intp(443),
		VLANMin:    intp(5),
	}

	tests := []struct {
		name   string
		target model.Criteria
		want   bool
	}{
		{"empty target matches anything", model.Criteria{}, true},
		{"single matching field", model.Criteria{IPAddr: "10.0.0.1"}, true},
		{"all fields matching", existing, true},
		{"differing string field", model.Criteria{IPAddr: "10.0.0.2"}, false},
		{"differing int field", model.Criteria{VLANMin: intp(6)}, false},
		{"int set on target but not existing", model.Criteria{SrcPortMin: intp(1)}, false},
		{"subset of int fields", model.Criteria{DstPortMin: intp(80)}, true},
		{"mixed match and mismatch", model.Criteria{IPAddr: "10.0.0.1", Direction: "outbound"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(existing, tt.target); got != tt.want {
				t.Errorf("Matches(%+v, %+v) = %v, want %v", existing, tt.target, got, tt.want)
			}
		})
	}
}

func TestMatchesIsOneDirectional(t *testing.T) {
	full := model.Criteria{IPAddr: "10.0.0.1", VLANMin: intp(5)}
	partial := model.Criteria{IPAddr: "10.0.0.1"}

	if !Matches(full, partial) {
		t.Error("partial selector should match fuller record")
	}
	if Matches(partial, full) {
		t.Error("fuller selector should not match partial record")
	}
}

func TestEquivalentImpliesMatches(t *testing.T) {
	pairs := []struct {
		a, b model.Criteria
	}{
		{model.Criteria{IPAddr: "10.0.0.1"}, model.Criteria{IPAddr: "10.0.0.1"}},
		{model.Criteria{IPAddr: "10.0.0.1", VLANMin: intp(5)}, model.Criteria{IPAddr: "10.0.0.1"}},
		{model.Criteria{}, model.Criteria{}},
		{model.Criteria{Direction: "inbound"}, model.Criteria{Direction: "outbound"}},
	}
	for _, pair := range pairs {
		if Equivalent(pair.a, pair.b) && !Matches(pair.a, pair.b) {
			t.Errorf("Equivalent(%+v, %+v) true but Matches false", pair.a, pair.b)
		}
	}

	if !Equivalent(model.Criteria{IPAddr: "10.0.0.1"}, model.Criteria{IPAddr: "10.0.0.1"}) {
		t.Error("identical records should be equivalent")
	}
	if Equivalent(model.Criteria{IPAddr: "10.0.0.1", VLANMin: intp(5)}, model.Criteria{IPAddr: "10.0.0.1"}) {
		t.Error("records with different field sets must not be equivalent")
	}
}
