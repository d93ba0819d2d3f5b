// Package classifier holds the configuration-backed document style classifier.
package classifier

import (
	"context"
	"strings"
)

// Static maps corpus ids to style tags from configuration. Unknown ids and
// the empty id answer "generic".
type Static struct {
	styles map[string]string
}

func NewStatic(styles map[string]string) *Static {
	normalized := make(map[string]string, len(styles))
	for corpusID, style := range styles {
		corpusID = strings.TrimSpace(corpusID)
		style = strings.ToLower(strings.TrimSpace(style))
		if corpusID == "" || style == "" {
			continue
		}
		normalized[corpusID] = style
	}
	return &Static{styles: normalized}
}

func (s *Static) Classify(_ context.Context, corpusID string) string {
	if style, ok := s.styles[strings.TrimSpace(corpusID)]; ok {
		return style
	}
	return "generic"
}
