package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	cases := []struct {
		input  string
		expect string
	}{
		{"  hello \n\t world  ", "hello world"},
		{"plain", "plain"},
		{"spaces   between", "spaces between"},
		// control characters are stripped outright
		{"beepboop", "beepboop"},
	}
	for _, test := range cases {
		require.Equal(t, test.expect, CleanText(test.input))
	}
}
