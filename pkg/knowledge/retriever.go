package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Snippet is a scored knowledge chunk for prompt grounding.
type Snippet struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Retriever matches questions to knowledge chunks by lexical token overlap.
// Scoring is deterministic and needs no external service.
type Retriever struct {
	docs []retrievalDoc
}

type retrievalDoc struct {
	title   string
	content string
	tokens  []string
}

// NewRetriever chunks the knowledge base into retrievable documents. Chunk
// order is deterministic so equal scores tie-break stably.
func NewRetriever(base *Base) *Retriever {
	r := &Retriever{}
	add := func(title, content string) {
		r.docs = append(r.docs, retrievalDoc{
			title:   title,
			content: content,
			tokens:  Tokenize(title + " " + content),
		})
	}

	for _, term := range sortedKeys(base.doc.Glossary.Products) {
		add("Glossary: "+term,
			fmt.Sprintf("Product Term: %s\nDefinition: %s", term, base.doc.Glossary.Products[term]))
	}
	for _, term := range sortedKeys(base.doc.Glossary.Terms) {
		add("Glossary: "+term,
			fmt.Sprintf("Business Term: %s\nDefinition: %s", term, base.doc.Glossary.Terms[term]))
	}
	for _, m := range base.metrics {
		add("Metric: "+m.Name,
			fmt.Sprintf("Metric: %s\nCategory: %s\nDefinition: %s\nSQL Pattern: %s",
				m.Name, m.Category, m.Definition, m.SQL))
	}
	for _, name := range sortedKeys(base.doc.SQLPatterns) {
		p := base.doc.SQLPatterns[name]
		add("Pattern: "+name,
			fmt.Sprintf("SQL Pattern: %s\nDescription: %s\nExample SQL:\n%s", name, p.Description, p.SQL))
	}
	for i, rule := range base.doc.BusinessRules {
		add(fmt.Sprintf("Business Rule %d", i+1), rule)
	}

	return r
}

// Retrieve returns the topK best-matching snippets for the question. Chunks
// with no token overlap are never returned.
func (r *Retriever) Retrieve(question string, topK int) []Snippet {
	if topK <= 0 {
		return nil
	}
	qTokens := Tokenize(question)
	if len(qTokens) == 0 {
		return nil
	}

	var snippets []Snippet
	for _, doc := range r.docs {
		shared := sharedTokens(qTokens, doc.tokens)
		if shared == 0 {
			continue
		}
		snippets = append(snippets, Snippet{
			Title:   doc.title,
			Content: doc.content,
			Score:   float64(shared) / float64(len(qTokens)),
		})
	}

	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].Score > snippets[j].Score
	})
	if len(snippets) > topK {
		snippets = snippets[:topK]
	}
	return snippets
}

// stopwords are common English words excluded from matching.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "be": true, "been": true,
	"being": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "not": true,
	"no": true, "and": true, "or": true, "but": true, "if": true,
	"then": true, "than": true, "so": true, "as": true, "at": true,
	"by": true, "for": true, "from": true, "in": true, "into": true,
	"of": true, "on": true, "to": true, "with": true, "about": true,
	"up": true, "out": true, "it": true, "its": true, "this": true,
	"that": true, "what": true, "which": true, "who": true, "how": true,
	"when": true, "where": true, "why": true, "you": true, "me": true,
	"i": true, "my": true, "your": true, "we": true, "they": true,
	"show": true, "tell": true, "per": true, "over": true,
}

// Tokenize splits text into unique lowercase non-stopword tokens. Digits and
// underscores stay so column names like event_amount survive intact. History
// search matches stored questions with the same tokens.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	seen := make(map[string]bool)
	var tokens []string
	for _, w := range words {
		if len(w) < 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// sharedTokens returns the count of tokens present in both slices.
func sharedTokens(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	count := 0
	for _, t := range b {
		if set[t] {
			count++
		}
	}
	return count
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
