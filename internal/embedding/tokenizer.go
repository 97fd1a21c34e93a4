package embedding

import "hash/fnv"

// BERT special token ids and the vocabulary size word ids are folded into.
const (
	tokenCLS  = 101
	tokenSEP  = 102
	vocabSize = 30000
	// firstWordID keeps hashed word ids clear of the special tokens.
	firstWordID = 1000
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer maps each case-folded word to a hashed vocabulary id.
// It needs no vocabulary file, at the cost of id collisions.
type SimpleTokenizer struct{}

// Tokenize returns [CLS] word... [SEP] padded with zeros to maxTokens.
// Words past maxTokens-2 are dropped.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = tokenCLS
	attentionMask[0] = 1
	pos := 1
	for _, word := range Words(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = wordID(word)
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = tokenSEP
	attentionMask[pos] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

func wordID(word string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(word))
	return firstWordID + int64(h.Sum32()%(vocabSize-firstWordID))
}
