package fee

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaggage(t *testing.T) {
	cases := []struct {
		name   string
		weight float64
		want   int64
	}{
		{"no bag", 0, 0},
		{"under allowance", 20, 0},
		{"exactly allowance", 25, 0},
		{"one kg over", 26, 1500},
		{"half kg over", 25.5, 750},
		{"fraction rounds to cent", 25.4, 600},
		{"heavy", 40, 22500},
		{"negative", -3, 0},
		{"nan", math.NaN(), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Baggage(tc.weight))
		})
	}
}
