// Package preprocess turns raw review text into the token stream the
// vectorizer was fitted on.
package preprocess

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// Only real tags: a stray "<3" or "< 10" in review text is kept.
	htmlTagPattern = regexp.MustCompile(`</?[A-Za-z][A-Za-z0-9-]*(?:\s[^<>]*)?/?>`)
	urlPattern     = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
)

// Negations are kept even when stopwords are removed.
var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "above": {}, "after": {}, "again": {}, "all": {}, "am": {}, "an": {},
	"and": {}, "any": {}, "are": {}, "as": {}, "at": {}, "be": {}, "because": {}, "been": {},
	"before": {}, "being": {}, "below": {}, "between": {}, "both": {}, "by": {}, "can": {},
	"did": {}, "do": {}, "does": {}, "doing": {}, "down": {}, "during": {}, "each": {},
	"few": {}, "for": {}, "from": {}, "further": {}, "had": {}, "has": {}, "have": {},
	"having": {}, "he": {}, "her": {}, "here": {}, "hers": {}, "herself": {}, "him": {},
	"himself": {}, "his": {}, "how": {}, "i": {}, "if": {}, "in": {}, "into": {}, "is": {},
	"it": {}, "its": {}, "itself": {}, "just": {}, "me": {}, "more": {}, "most": {}, "my": {},
	"myself": {}, "now": {}, "of": {}, "off": {}, "on": {}, "once": {}, "only": {}, "or": {},
	"other": {}, "our": {}, "ours": {}, "ourselves": {}, "out": {}, "over": {}, "own": {},
	"same": {}, "she": {}, "should": {}, "so": {}, "some": {}, "such": {}, "than": {},
	"that": {}, "the": {}, "their": {}, "theirs": {}, "them": {}, "themselves": {}, "then": {},
	"there": {}, "these": {}, "they": {}, "this": {}, "those": {}, "through": {}, "to": {},
	"too": {}, "under": {}, "until": {}, "up": {}, "very": {}, "was": {}, "we": {}, "were": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "while": {}, "who": {}, "whom": {},
	"why": {}, "will": {}, "with": {}, "would": {}, "you": {}, "your": {}, "yours": {},
	"yourself": {}, "yourselves": {},
}

type Options struct {
	StripAccents    bool
	RemoveStopwords bool
	MinTokenLen     int
}

func DefaultOptions() Options {
	return Options{StripAccents: true, RemoveStopwords: true, MinTokenLen: 2}
}

// Preprocessor is stateless apart from its options and safe for concurrent use.
type Preprocessor struct {
	opts Options
}

func New(opts Options) *Preprocessor {
	if opts.MinTokenLen < 1 {
		opts.MinTokenLen = 1
	}
	return &Preprocessor{opts: opts}
}

// Clean returns the normalized text with tokens joined by single spaces.
func (p *Preprocessor) Clean(text string) string {
	return strings.Join(p.Tokens(text), " ")
}

// Tokens returns the cleaned token sequence for text.
func (p *Preprocessor) Tokens(text string) []string {
	text = htmlTagPattern.ReplaceAllString(text, " ")
	text = urlPattern.ReplaceAllString(text, " ")
	text = p.normalize(text)
	text = strings.NewReplacer("'", "", "’", "").Replace(text)

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, tok := range fields {
		if len([]rune(tok)) < p.opts.MinTokenLen && !isNegation(tok) {
			continue
		}
		if p.opts.RemoveStopwords && !isNegation(tok) {
			if _, ok := stopwords[tok]; ok {
				continue
			}
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// normalize applies Unicode compatibility decomposition, optional accent
// removal, and case folding. The transformers are built per call because
// transform.Chain carries state.
func (p *Preprocessor) normalize(text string) string {
	var t transform.Transformer
	if p.opts.StripAccents {
		t = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	} else {
		t = transform.Chain(norm.NFKC, cases.Fold())
	}
	out, _, err := transform.String(t, text)
	if err != nil {
		return strings.ToLower(text)
	}
	return out
}

func isNegation(tok string) bool {
	switch tok {
	case "no", "not", "nor", "never", "dont", "doesnt", "didnt", "isnt", "wasnt", "cant", "wont":
		return true
	}
	return false
}
