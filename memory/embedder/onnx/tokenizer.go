package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Special token IDs in the BERT uncased vocabulary.
const (
	clsToken = 101
	sepToken = 102
	unkToken = 100
)

// Tokenizer handles BERT-style WordPiece tokenization.
type Tokenizer struct {
	vocab map[string]int
}

// LoadTokenizer reads the vocabulary from a HuggingFace tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tokenizerData struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tokenizerData); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(tokenizerData.Model.Vocab) == 0 {
		return nil, fmt.Errorf("%s has an empty vocabulary", path)
	}

	return NewTokenizer(tokenizerData.Model.Vocab), nil
}

// NewTokenizer builds a tokenizer from a vocabulary map.
func NewTokenizer(vocab map[string]int) *Tokenizer {
	return &Tokenizer{vocab: vocab}
}

// Encode returns fixed-length input IDs and attention mask, framed by
// [CLS] and [SEP] and truncated to maxLen.
func (t *Tokenizer) Encode(text string, maxLen int) (ids, mask []int64) {
	tokens := t.Tokenize(text)

	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)

	ids[0] = clsToken
	mask[0] = 1

	n := len(tokens)
	if n > maxLen-2 {
		n = maxLen - 2
	}
	for i := 0; i < n; i++ {
		ids[i+1] = tokens[i]
		mask[i+1] = 1
	}

	ids[n+1] = sepToken
	mask[n+1] = 1
	return ids, mask
}

// Tokenize converts text to token IDs using WordPiece.
func (t *Tokenizer) Tokenize(text string) []int64 {
	words := strings.Fields(strings.ToLower(text))

	var tokens []int64
	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}

		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}

		for _, sub := range t.wordPiece(word) {
			if id, ok := t.vocab[sub]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, unkToken)
			}
		}
	}
	return tokens
}

// wordPiece splits word greedily into the longest known subwords.
func (t *Tokenizer) wordPiece(word string) []string {
	var subwords []string
	start := 0

	for start < len(word) {
		end := len(word)
		found := false

		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				subwords = append(subwords, sub)
				start = end
				found = true
				break
			}
			end--
		}

		if !found {
			subwords = append(subwords, "[UNK]")
			start++
		}
	}
	return subwords
}
