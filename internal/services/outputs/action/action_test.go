package action

import (
	"testing"

	apperrors "github.com/louisbranch/outputinfo/internal/platform/errors"
)

func TestParseEventAction(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Action
	}{
		{
			name: "full",
			raw:  "door1,Open,,2.5,1",
			want: Action{Target: "door1", TargetInput: "Open", Delay: 2.5, TimesToFire: 1},
		},
		{
			name: "defaults",
			raw:  "relay,Trigger",
			want: Action{Target: "relay", TargetInput: "Trigger", TimesToFire: FireAlways},
		},
		{
			name: "escape separated",
			raw:  "hud\x1bSetText\x1bhello, world\x1b0\x1b-1",
			want: Action{Target: "hud", TargetInput: "SetText", Parameter: "hello, world", TimesToFire: FireAlways},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEventAction(tt.raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParseEventActionRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"only_target",
		",Open",
		"a,b,c,d,e,f",
		"a,b,,soon",
		"a,b,,-1",
		"a,b,,0,0",
		"a,b,,0,-2",
		"a,b,,0,many",
	} {
		_, err := ParseEventAction(raw)
		if code := apperrors.CodeOf(err); code != apperrors.CodeEventActionMalformed {
			t.Fatalf("%q: expected %s, got %v", raw, apperrors.CodeEventActionMalformed, err)
		}
	}
}

func TestFormatEventActionParsesBack(t *testing.T) {
	a := Action{Target: "lamp", TargetInput: "TurnOn", Parameter: "red", Delay: 0.75, TimesToFire: 4}
	raw := FormatEventAction(a)
	if raw != "lamp,TurnOn,red,0.75,4" {
		t.Fatalf("unexpected format %q", raw)
	}
	got, err := ParseEventAction(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != a {
		t.Fatalf("expected %+v, got %+v", a, got)
	}
}

func TestParseField(t *testing.T) {
	for name, want := range map[string]Field{
		"target":       FieldTarget,
		"TargetInput":  FieldTargetInput,
		"input":        FieldTargetInput,
		"parameter":    FieldParameter,
		" param ":      FieldParameter,
		"target_input": FieldTargetInput,
	} {
		got, err := ParseField(name)
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}
		if got != want {
			t.Fatalf("%q: expected %s, got %s", name, want, got)
		}
	}
	if _, err := ParseField("delay"); apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestStamperObserve(t *testing.T) {
	var s Stamper
	s.Observe(10)
	if got := s.Next(); got != 11 {
		t.Fatalf("expected 11, got %d", got)
	}
	s.Observe(3)
	if got := s.Next(); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
}
