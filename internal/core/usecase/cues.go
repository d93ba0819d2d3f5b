package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

// CuePhrases are raw regular-expression fragments per cue family. Each
// fragment is matched case-insensitively as a whole word or phrase.
type CuePhrases struct {
	Conditional  []string
	Comparison   []string
	Procedural   []string
	Aggregation  []string
	Locator      []string
	AboutLocator []string
	HyDE         []string
}

func DefaultCuePhrases() CuePhrases {
	return CuePhrases{
		Conditional: []string{`si\s+.+?\s+entonces`},
		Comparison:  []string{`diferencias?`, `compara\w*`},
		Procedural:  []string{`procesos?`, `pasos`, `cómo`},
		Aggregation: []string{`lista\w*`, `todos`, `todas`, `enumera\w*`},
		Locator: []string{
			`(?:art[ií]culo|art\.|cap[ií]tulo|secci[oó]n|numeral|par[aá]grafo|literal|inciso|anexo|t[ií]tulo)\s*\d+(?:\.\d+)*`,
		},
		AboutLocator: []string{`qu[eé]\s+dice`, `qu[eé]\s+establece`, `de\s+qu[eé]\s+trata`, `explica\w*`, `resume\w*`},
		HyDE: []string{
			`definici[oó]n`,
			`significa\w*`,
			`concepto\s+de`,
			`en\s+qu[eé]\s+consiste`,
			`para\s+qu[eé]\s+sirve`,
			`c[oó]mo\s+se`,
			`procedimiento`,
			`explica\w*`,
		},
	}
}

// CueLexicon is the compiled form of CuePhrases.
type CueLexicon struct {
	Conditional  *regexp.Regexp
	Comparison   *regexp.Regexp
	Procedural   *regexp.Regexp
	Aggregation  *regexp.Regexp
	Locator      *regexp.Regexp
	AboutLocator *regexp.Regexp
	HyDE         *regexp.Regexp
}

func CompileCues(phrases CuePhrases) (CueLexicon, error) {
	var (
		lexicon CueLexicon
		err     error
	)
	families := []struct {
		name      string
		fragments []string
		target    **regexp.Regexp
	}{
		{"conditional", phrases.Conditional, &lexicon.Conditional},
		{"comparison", phrases.Comparison, &lexicon.Comparison},
		{"procedural", phrases.Procedural, &lexicon.Procedural},
		{"aggregation", phrases.Aggregation, &lexicon.Aggregation},
		{"locator", phrases.Locator, &lexicon.Locator},
		{"about_locator", phrases.AboutLocator, &lexicon.AboutLocator},
		{"hyde", phrases.HyDE, &lexicon.HyDE},
	}
	for _, family := range families {
		*family.target, err = compileFamily(family.fragments)
		if err != nil {
			return CueLexicon{}, domain.WrapError(domain.ErrInvalidInput, "compile cues", fmt.Errorf("%s: %w", family.name, err))
		}
	}
	return lexicon, nil
}

// MustCompileCues panics on invalid fragments; used for the built-in lexicon.
func MustCompileCues(phrases CuePhrases) CueLexicon {
	lexicon, err := CompileCues(phrases)
	if err != nil {
		panic(err)
	}
	return lexicon
}

func compileFamily(fragments []string) (*regexp.Regexp, error) {
	parts := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}
		if _, err := regexp.Compile(fragment); err != nil {
			return nil, err
		}
		parts = append(parts, "(?:"+fragment+")")
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return regexp.Compile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(parts, "|") + `)(?:$|[^\p{L}\p{N}])`)
}

func matches(re *regexp.Regexp, text string) bool {
	return re != nil && re.MatchString(text)
}
