package tokens

import "testing"

func TestEstimateTokenCount(t *testing.T) {
	cases := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "   \t\n", 0},
		{"one word", "hello", 2},
		{"two words", "hello world", 3},
		{"three words", "Hola que tal", 4},
		{"ten words", "a b c d e f g h i j", 13},
		{"extra whitespace ignored", "  hello   world  ", 3},
	}

	for _, tc := range cases {
		got := EstimateTokenCount(tc.text)
		if got != tc.want {
			t.Errorf("%s: EstimateTokenCount(%q) = %d, want %d", tc.name, tc.text, got, tc.want)
		}
	}
}

func TestEstimateTokenCountMonotonic(t *testing.T) {
	prev := 0
	text := ""
	for i := 0; i < 50; i++ {
		text += "word "
		got := EstimateTokenCount(text)
		if got < prev {
			t.Fatalf("estimate decreased from %d to %d at %d words", prev, got, i+1)
		}
		prev = got
	}
}

func TestCalculateCost(t *testing.T) {
	cases := []struct {
		name   string
		input  int
		output int
		want   int
	}{
		{"zero", 0, 0, 0},
		{"input only", 1000, 0, 100},
		{"output only", 0, 1000, 300},
		{"mixed exact", 500, 500, 200},
		{"rounds up", 1, 0, 1},
		{"small turn", 100, 200, 70},
	}

	for _, tc := range cases {
		got := CalculateCost(tc.input, tc.output)
		if got != tc.want {
			t.Errorf("%s: CalculateCost(%d, %d) = %d, want %d", tc.name, tc.input, tc.output, got, tc.want)
		}
	}
}

func TestCalculateCostMonotonic(t *testing.T) {
	base := CalculateCost(100, 100)
	if CalculateCost(200, 100) < base {
		t.Error("cost not monotone in input tokens")
	}
	if CalculateCost(100, 200) < base {
		t.Error("cost not monotone in output tokens")
	}
}
