package consolidation

import (
	"strings"

	"github.com/scrypster/reverie/pkg/types"
)

// themeKeywords maps theme names to the content keywords that signal
// them. Kept as a slice so extraction order stays deterministic.
var themeKeywords = []struct {
	theme    string
	keywords []string
}{
	{"conversation", []string{"talk", "speak", "discuss", "conversation", "chat"}},
	{"introduction", []string{"introduce", "name", "hello", "meet", "greet"}},
	{"sustainability", []string{"climate", "sustainability", "environment", "green", "renewable"}},
	{"research", []string{"research", "study", "investigate", "analyze", "data"}},
	{"festival", []string{"festival", "event", "celebration", "dance", "performance"}},
	{"food", []string{"food", "eat", "drink", "coffee", "tea", "meal"}},
	{"clothing", []string{"clothes", "shirt", "dress", "wear", "fashion"}},
}

// extractThemes returns the themes whose keywords show up in at least
// two distinct members of the group. A member counts once per theme no
// matter how many of its keywords it matches.
func extractThemes(group []types.Memory) []string {
	counts := make(map[string]int, len(themeKeywords))
	for i := range group {
		content := strings.ToLower(group[i].Content)
		for _, tk := range themeKeywords {
			for _, kw := range tk.keywords {
				if strings.Contains(content, kw) {
					counts[tk.theme]++
					break
				}
			}
		}
	}

	var themes []string
	for _, tk := range themeKeywords {
		if counts[tk.theme] >= 2 {
			themes = append(themes, tk.theme)
		}
	}
	return themes
}
