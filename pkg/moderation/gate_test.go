package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyBlocked(t *testing.T) {
	g := New([]string{"badword"}, nil, 0)

	require.Equal(t, Blocked, g.Classify("this contains badword here").Verdict)
	// case and separator obfuscation still match
	require.Equal(t, Blocked, g.Classify("B.a.d-Word").Verdict)
	require.Equal(t, Allowed, g.Classify("perfectly fine").Verdict)
}

func TestClassifyBlockBeatsFlag(t *testing.T) {
	g := New([]string{"worst"}, []string{"worst", "iffy"}, 0)

	res := g.Classify("the worst iffy thing")
	require.Equal(t, Blocked, res.Verdict)
}

func TestClassifyFlagged(t *testing.T) {
	g := New(nil, []string{"iffy"}, 0)

	res := g.Classify("a bit iffy maybe")
	require.Equal(t, Flagged, res.Verdict)
	require.NotEmpty(t, res.Reason)
}

func TestClassifyLinkSpam(t *testing.T) {
	g := New(nil, nil, 2)

	require.Equal(t, Allowed, g.Classify("see https://a.example and http://b.example").Verdict)
	res := g.Classify("https://a https://b https://c")
	require.Equal(t, Flagged, res.Verdict)
	require.Equal(t, "link spam", res.Reason)
}

func TestClassifyDeterministic(t *testing.T) {
	g := New([]string{"x"}, []string{"y"}, 1)
	for i := 0; i < 10; i++ {
		require.Equal(t, g.Classify("same input"), g.Classify("same input"))
	}
}

func TestVerdictString(t *testing.T) {
	require.Equal(t, "allowed", Allowed.String())
	require.Equal(t, "flagged", Flagged.String())
	require.Equal(t, "blocked", Blocked.String())
}
