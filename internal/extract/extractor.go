// Package extract pulls the user-facing answer out of raw assistant text,
// which may wrap it in <result> alongside tags meant only for the model.
package extract

import (
	"strings"

	"golang.org/x/net/html"
)

const resultTag = "result"

type token struct {
	typ  html.TokenType
	name string
	raw  string
	text string
}

// DisplayText returns the text content of the first complete <result>
// element. Without one, every paired tag together with its content and every
// self-closing tag is removed, and the remainder is returned. Unpaired tags
// are kept verbatim.
func DisplayText(raw string) string {
	tokens := tokenize(raw)
	pairs := matchPairs(tokens)

	for i, t := range tokens {
		if t.name != resultTag {
			continue
		}
		switch t.typ {
		case html.SelfClosingTagToken:
			return ""
		case html.StartTagToken:
			if end, ok := pairs[i]; ok {
				return strings.TrimSpace(textContent(tokens[i+1 : end]))
			}
		}
	}

	return strings.TrimSpace(stripTags(tokens, pairs))
}

func tokenize(s string) []token {
	z := html.NewTokenizer(strings.NewReader(s))
	var tokens []token
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF; a strings.Reader has no other failure mode
			return tokens
		}

		raw := string(z.Raw())
		t := z.Token()
		tok := token{typ: tt, raw: raw}
		switch tt {
		case html.StartTagToken:
			tok.name = t.Data
			// model markup is XML-ish: never switch into raw text mode
			// for names like <title> or <script>
			z.NextIsNotRawText()
		case html.EndTagToken, html.SelfClosingTagToken:
			tok.name = t.Data
		case html.TextToken:
			tok.text = t.Data
		}
		tokens = append(tokens, tok)
	}
}

// matchPairs maps the index of every start tag that has a matching end tag
// to the index of that end tag.
func matchPairs(tokens []token) map[int]int {
	pairs := make(map[int]int)
	var open []int
	for i, t := range tokens {
		switch t.typ {
		case html.StartTagToken:
			open = append(open, i)
		case html.EndTagToken:
			for k := len(open) - 1; k >= 0; k-- {
				if tokens[open[k]].name == t.name {
					pairs[open[k]] = i
					open = open[:k]
					break
				}
			}
		}
	}
	return pairs
}

func textContent(tokens []token) string {
	var sb strings.Builder
	for _, t := range tokens {
		if t.typ == html.TextToken {
			sb.WriteString(t.text)
		}
	}
	return sb.String()
}

func stripTags(tokens []token, pairs map[int]int) string {
	var sb strings.Builder
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		switch t.typ {
		case html.TextToken:
			sb.WriteString(t.text)
		case html.StartTagToken:
			if end, ok := pairs[i]; ok {
				i = end
				continue
			}
			sb.WriteString(t.raw)
		case html.EndTagToken:
			sb.WriteString(t.raw)
		case html.SelfClosingTagToken, html.CommentToken, html.DoctypeToken:
		}
	}
	return sb.String()
}
