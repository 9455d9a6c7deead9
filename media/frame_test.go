package media

import "testing"

func TestRationalZero(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		r    Rational
		want bool
	}{
		{"unset", Rational{}, true},
		{"zero numerator", Rational{Num: 0, Den: 1}, true},
		{"zero denominator", Rational{Num: 30, Den: 0}, true},
		{"whole rate", Rational{Num: 30, Den: 1}, false},
		{"ntsc rate", Rational{Num: 30000, Den: 1001}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Zero(); got != tt.want {
				t.Errorf("Zero() = %v, want %v", got, tt.want)
			}
		})
	}
}
