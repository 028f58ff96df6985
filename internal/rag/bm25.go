package rag

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25 tuning constants (Robertson et al. defaults).
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

type bm25Doc struct {
	id  string
	tf  map[string]int
	len int
}

// BM25Index is an Okapi BM25 ranking over the chunk corpus. It is immutable
// after construction; the store swaps in a freshly built index after every
// write.
type BM25Index struct {
	docs   []bm25Doc
	idf    map[string]float64
	avgLen float64
}

// BuildBM25Index indexes texts, identified by the parallel ids slice.
func BuildBM25Index(ids, texts []string) *BM25Index {
	idx := &BM25Index{idf: map[string]float64{}}
	if len(ids) == 0 {
		return idx
	}

	df := map[string]int{}
	totalLen := 0
	idx.docs = make([]bm25Doc, 0, len(ids))
	for i, id := range ids {
		terms := tokenize(texts[i])
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		for t := range tf {
			df[t]++
		}
		totalLen += len(terms)
		idx.docs = append(idx.docs, bm25Doc{id: id, tf: tf, len: len(terms)})
	}

	n := len(idx.docs)
	idx.avgLen = float64(totalLen) / float64(n)
	// log((N+1)/(df+1)) + 1 keeps IDF positive even for terms in every doc.
	for t, f := range df {
		idx.idf[t] = math.Log(float64(n+1)/float64(f+1)) + 1
	}
	return idx
}

func (idx *BM25Index) Len() int { return len(idx.docs) }

// score returns the BM25 score of the document at position i.
func (idx *BM25Index) score(i int, terms []string) float64 {
	doc := idx.docs[i]
	norm := 1.0
	if idx.avgLen > 0 {
		norm = 1 - bm25B + bm25B*float64(doc.len)/idx.avgLen
	}
	var s float64
	for _, t := range terms {
		tf := float64(doc.tf[t])
		if tf == 0 {
			continue
		}
		s += idx.idf[t] * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
	}
	return s
}

// Top returns the ids of the n best-scoring documents for query. Documents
// that share no term with the query are left out; ties keep corpus order.
func (idx *BM25Index) Top(query string, n int) []string {
	terms := tokenize(query)
	if len(terms) == 0 || n <= 0 {
		return nil
	}

	type hit struct {
		pos   int
		score float64
	}
	hits := make([]hit, 0, len(idx.docs))
	for i := range idx.docs {
		if s := idx.score(i, terms); s > 0 {
			hits = append(hits, hit{i, s})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	if len(hits) > n {
		hits = hits[:n]
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = idx.docs[h.pos].id
	}
	return ids
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
