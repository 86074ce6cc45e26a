package excerpt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBuild_Truncates(t *testing.T) {
	got := Build(strings.Repeat("a", 1000), 100)
	assert.Len(t, got, 103)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestBuild_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "Client may cancel with notice.", Build("\n  Client  may\tcancel\n\nwith notice.  \n", 100))
}

func TestBuild_Empty(t *testing.T) {
	assert.Equal(t, "", Build("", 10))
	assert.Equal(t, "", Build(" \n\t ", 10))
}

func TestBuild_ExactLengthNotTruncated(t *testing.T) {
	body := strings.Repeat("b", 50)
	assert.Equal(t, body, Build(body, 50))
}

func TestBuild_DefaultLength(t *testing.T) {
	got := Build(strings.Repeat("word ", 400), 0)
	assert.Equal(t, DefaultLength+len(Ellipsis), len(got))
}

func TestBuild_CountsRunes(t *testing.T) {
	got := Build(strings.Repeat("é", 20), 10)
	assert.Equal(t, 13, utf8.RuneCountInString(got))
}
