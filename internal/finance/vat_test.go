package finance

import "testing"

func TestNetFromGross(t *testing.T) {
	cases := []struct {
		gross int64
		rate  int
		want  int64
	}{
		{11900, 19, 10000},
		{10700, 7, 10000},
		{10000, 0, 10000},
		{100, 19, 84},
		{1, 19, 1},
		{0, 19, 0},
		{-11900, 19, -10000},
	}
	for _, c := range cases {
		if got := NetFromGross(c.gross, c.rate); got != c.want {
			t.Errorf("NetFromGross(%d, %d) = %d, want %d", c.gross, c.rate, got, c.want)
		}
	}
}

func TestTaxFromGross(t *testing.T) {
	if got := TaxFromGross(11900, 19); got != 1900 {
		t.Errorf("TaxFromGross(11900, 19) = %d, want 1900", got)
	}
	if got := TaxFromGross(10700, 7); got != 700 {
		t.Errorf("TaxFromGross(10700, 7) = %d, want 700", got)
	}
	if got := TaxFromGross(5000, 0); got != 0 {
		t.Errorf("TaxFromGross(5000, 0) = %d, want 0", got)
	}
}

func TestMileageAmount(t *testing.T) {
	cases := []struct {
		km   float64
		want int64
	}{
		{500, 15000},
		{1, 30},
		{10.5, 315},
		{0.1, 3},
		{0, 0},
	}
	for _, c := range cases {
		if got := MileageAmount(c.km); got != c.want {
			t.Errorf("MileageAmount(%v) = %d, want %d", c.km, got, c.want)
		}
	}
}

func TestValidTaxRate(t *testing.T) {
	for _, rate := range []int{0, 7, 19} {
		if !ValidTaxRate(rate) {
			t.Errorf("ValidTaxRate(%d) = false, want true", rate)
		}
	}
	for _, rate := range []int{1, 5, 16, 20, -7} {
		if ValidTaxRate(rate) {
			t.Errorf("ValidTaxRate(%d) = true, want false", rate)
		}
	}
}
