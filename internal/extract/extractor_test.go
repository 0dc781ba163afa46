package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"result wins", "<thinking>skip</thinking><result>Use 2 eggs</result>", "Use 2 eggs"},
		{"no result strips pairs", "<note>x</note>Plain text", "Plain text"},
		{"plain text", "  Whisk the eggs.\n", "Whisk the eggs."},
		{"self-closing stripped", "Preheat<br/> the oven<sep />", "Preheat the oven"},
		{"nested pairs stripped", "<a><b>deep</b> still</a>Kept", "Kept"},
		{"unpaired start kept", "Use <b>less sugar", "Use <b>less sugar"},
		{"unpaired end kept", "Stir</x> gently", "Stir</x> gently"},
		{"result text content", "<result>Bake <em>20</em> minutes &amp; rest</result>", "Bake 20 minutes & rest"},
		{"result inside reasoning", "<answer><result>Serve warm</result></answer>", "Serve warm"},
		{"raw text elements parse as markup", "<title>hidden</title><result><script>x</script>Salt</result>", "xSalt"},
		{"empty result", "<thinking>none</thinking><result/>", ""},
		{"unclosed result falls back", "<result>Half", "<result>Half"},
		{"multiline", "<thinking>\nlong\n</thinking>\n<result>\nLine one\nLine two\n</result>\n", "Line one\nLine two"},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DisplayText(tc.raw))
		})
	}
}
