// Package tokenizer implements the CLIP BPE tokenizer used to condition the
// denoising network. Vocabulary and merge rules are loaded from the model
// directory (vocab.json + merges.txt).
package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// ContextLength is the fixed CLIP token context. Every prompt is padded or
// truncated to exactly this many tokens so all prompts in a batch share one
// tokenized length.
const ContextLength = 77

const wordEnd = "</w>"

// Tokenizer holds the CLIP byte-pair-encoding state.
type Tokenizer struct {
	vocab  map[string]int64
	merges []mergePair
	bos    int64
	eos    int64
}

type mergePair struct {
	a, b string
}

// Load reads vocab.json and merges.txt from dir.
func Load(dir string) (*Tokenizer, error) {
	vocabData, err := os.ReadFile(filepath.Join(dir, "vocab.json"))
	if err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	vocab := make(map[string]int64)
	if err := json.Unmarshal(vocabData, &vocab); err != nil {
		return nil, fmt.Errorf("parse vocab: %w", err)
	}

	mergesData, err := os.ReadFile(filepath.Join(dir, "merges.txt"))
	if err != nil {
		return nil, fmt.Errorf("read merges: %w", err)
	}
	var merges []mergePair
	for _, line := range strings.Split(string(mergesData), "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		a, b, ok := strings.Cut(line, " ")
		if ok {
			merges = append(merges, mergePair{a: a, b: b})
		}
	}

	bos, ok := vocab["<|startoftext|>"]
	if !ok {
		return nil, fmt.Errorf("vocab has no start token")
	}
	eos, ok := vocab["<|endoftext|>"]
	if !ok {
		return nil, fmt.Errorf("vocab has no end token")
	}

	return &Tokenizer{vocab: vocab, merges: merges, bos: bos, eos: eos}, nil
}

// Encode tokenizes text into exactly ContextLength token IDs: BOS, the BPE
// tokens, then EOS padding. Overlong prompts are truncated with a trailing
// EOS.
func (t *Tokenizer) Encode(text string) []int64 {
	text = strings.ToLower(strings.TrimSpace(text))

	tokens := []int64{t.bos}
	for _, word := range splitWords(text) {
		for _, part := range t.bpe(word + wordEnd) {
			if id, ok := t.vocab[part]; ok {
				tokens = append(tokens, id)
			}
		}
	}
	tokens = append(tokens, t.eos)

	if len(tokens) > ContextLength {
		tokens = tokens[:ContextLength]
		tokens[ContextLength-1] = t.eos
	}
	for len(tokens) < ContextLength {
		tokens = append(tokens, t.eos)
	}
	return tokens
}

// bpe splits a word into characters and applies the merge rules in rank
// order.
func (t *Tokenizer) bpe(word string) []string {
	parts := make([]string, 0, len(word))
	for i := 0; i < len(word); {
		if strings.HasPrefix(word[i:], wordEnd) {
			parts = append(parts, wordEnd)
			i += len(wordEnd)
		} else {
			parts = append(parts, string(word[i]))
			i++
		}
	}

	for _, merge := range t.merges {
		merged := parts[:0:0]
		for i := 0; i < len(parts); {
			if i+1 < len(parts) && parts[i] == merge.a && parts[i+1] == merge.b {
				merged = append(merged, merge.a+merge.b)
				i += 2
			} else {
				merged = append(merged, parts[i])
				i++
			}
		}
		parts = merged
		if len(parts) == 1 {
			break
		}
	}
	return parts
}

// splitWords breaks text on whitespace, keeping punctuation as separate
// words the way CLIP's pre-tokenizer does.
func splitWords(text string) []string {
	var words []string
	var current []rune
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if len(current) > 0 {
				words = append(words, string(current))
				current = current[:0]
			}
		case unicode.IsPunct(r):
			if len(current) > 0 {
				words = append(words, string(current))
				current = current[:0]
			}
			words = append(words, string(r))
		default:
			current = append(current, r)
		}
	}
	if len(current) > 0 {
		words = append(words, string(current))
	}
	return words
}
