package decimal

import "testing"

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		decimals uint8
		want     string
	}{
		{"six decimals with fraction", "2500000", 6, "2.5"},
		{"six decimals exact whole", "3000000", 6, "3"},
		{"zero decimals", "100", 0, "100"},
		{"24 decimals native scale", "1000000000000000000000000", 24, "1"},
		{"zero value", "0", 6, "0"},
		{"zero value zero decimals", "0", 0, "0"},
		{"no trailing zero strip needed", "1", 0, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToDecimal(tt.raw, tt.decimals)
			if err != nil {
				t.Fatalf("ToDecimal(%q, %d) returned error: %v", tt.raw, tt.decimals, err)
			}
			if got != tt.want {
				t.Errorf("ToDecimal(%q, %d) = %q, want %q", tt.raw, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestToDecimalRejectsMalformed(t *testing.T) {
	tests := []string{"", "abc", "-5", "1.5"}
	for _, raw := range tests {
		if _, err := ToDecimal(raw, 6); err == nil {
			t.Errorf("ToDecimal(%q, 6) expected error, got nil", raw)
		}
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"3", "3.0", true},
		{"3", "3.000", true},
		{"3", "3.1", false},
		{"0", "0.0", true},
		{"11.1002111266305371", "11.1002111266305371", true},
	}
	for _, tt := range tests {
		got, err := Equal(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Equal(%q, %q) returned error: %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("Equal(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSub(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"11.1002111266305371", "6.1002111266305371", "5"},
		{"900", "1000", "-100"},
		{"3", "3.0", "0"},
		{"0", "0", "0"},
		{"2.5", "0", "2.5"},
		{"0.25", "0.125", "0.125"},
		{"1", "0.3", "0.7"},
	}
	for _, tt := range tests {
		got, err := Sub(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Sub(%q, %q) returned error: %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("Sub(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
