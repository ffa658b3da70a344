package export

import (
	"bufio"
	"fmt"
	"io"
	"unicode"

	"nercollab/internal/annotation"
)

type token struct {
	Text  string
	Start int
	End   int
}

// tokenize splits on whitespace and reports rune offsets.
func tokenize(text string) []token {
	var tokens []token
	runes := []rune(text)
	start := -1
	for i, r := range runes {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, token{Text: string(runes[start:i]), Start: start, End: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{Text: string(runes[start:]), Start: start, End: len(runes)})
	}
	return tokens
}

// BIOTags assigns one tag per whitespace token. The first entity in start
// order that touches a token wins; the token holding the entity start gets B-.
func BIOTags(text string, entities []annotation.Entity) ([]string, []string) {
	tokens := tokenize(text)
	words := make([]string, len(tokens))
	tags := make([]string, len(tokens))
	for i, tok := range tokens {
		words[i] = tok.Text
		tags[i] = "O"
		for _, e := range entities {
			if !(e.Start <= tok.Start && tok.Start < e.End) && !(e.Start < tok.End && tok.End <= e.End) {
				continue
			}
			label := e.EntityType
			if label == "" {
				label = "MISC"
			}
			if tok.Start <= e.Start {
				tags[i] = "B-" + label
			} else {
				tags[i] = "I-" + label
			}
			break
		}
	}
	return words, tags
}

// WriteCoNLL writes token<TAB>tag lines per task, each task opened by a
// "# Task: <id>" comment and separated by a blank line.
func WriteCoNLL(w io.Writer, tasks []TaskExport) error {
	bw := bufio.NewWriter(w)
	for i, task := range tasks {
		if i > 0 {
			fmt.Fprintln(bw)
		}
		fmt.Fprintf(bw, "# Task: %s\n", task.ID)
		words, tags := BIOTags(task.Text, task.MergedAnnotations)
		for j := range words {
			fmt.Fprintf(bw, "%s\t%s\n", words[j], tags[j])
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write conll: %w", err)
	}
	return nil
}
