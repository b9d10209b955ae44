// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package textindex provides a small TF-IDF index with cosine scoring.
//
// # Description
//
// The index is built once from named documents and is immutable afterwards.
// Scores are cosine similarities between the TF-IDF vector of the query and
// that of each document, so every score lies in [0, 1]. Query terms that
// never occur in the corpus are ignored.
//
// # Thread Safety
//
// An Index is safe for concurrent reads.
package textindex

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// stopWords are dropped during tokenization; they carry no routing signal.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"in": true, "on": true, "at": true, "to": true, "for": true,
	"of": true, "is": true, "are": true, "was": true, "it": true,
	"be": true, "by": true, "with": true, "from": true, "as": true,
	"that": true, "this": true, "each": true, "into": true,
}

// Document is one named text in the index.
type Document struct {
	Name string
	Text string
}

// Result is one scored document.
type Result struct {
	Name  string
	Index int
	Score float64
}

// Index is an immutable TF-IDF index.
type Index struct {
	names   []string
	vectors []map[string]float64
	norms   []float64
	idf     map[string]float64
}

// Tokenize lowercases text, splits it into alphanumeric runs and drops
// stop words.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := raw[:0]
	for _, tok := range raw {
		if !stopWords[tok] {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// New builds an index over documents.
//
// # Description
//
// Term frequency is the raw count normalized by document length. IDF uses
// the smoothed form log((1+N)/(1+df)) + 1, which stays positive for terms
// present in every document.
//
// # Inputs
//
//   - documents: Documents in significant order; Result.Index refers to it.
//
// # Outputs
//
//   - *Index: The built index.
func New(documents []Document) *Index {
	idx := &Index{
		names:   make([]string, len(documents)),
		vectors: make([]map[string]float64, len(documents)),
		norms:   make([]float64, len(documents)),
		idf:     make(map[string]float64),
	}

	termFreqs := make([]map[string]float64, len(documents))
	docFreq := make(map[string]int)
	for i, doc := range documents {
		idx.names[i] = doc.Name
		termFreqs[i] = termFrequencies(Tokenize(doc.Text))
		for term := range termFreqs[i] {
			docFreq[term]++
		}
	}

	n := float64(len(documents))
	for term, df := range docFreq {
		idx.idf[term] = math.Log((1+n)/(1+float64(df))) + 1
	}

	for i, tf := range termFreqs {
		idx.vectors[i], idx.norms[i] = idx.weigh(tf)
	}
	return idx
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	return len(idx.names)
}

// Scores returns the cosine similarity of query against every document, in
// document order.
func (idx *Index) Scores(query string) []float64 {
	scores := make([]float64, len(idx.names))
	qvec, qnorm := idx.weigh(termFrequencies(Tokenize(query)))
	if qnorm == 0 {
		return scores
	}
	for i, dvec := range idx.vectors {
		if idx.norms[i] == 0 {
			continue
		}
		var dot float64
		for term, w := range qvec {
			dot += w * dvec[term]
		}
		scores[i] = clamp01(dot / (qnorm * idx.norms[i]))
	}
	return scores
}

// Similarity returns the cosine similarity between query and document i.
// Out-of-range indices score 0.
func (idx *Index) Similarity(query string, i int) float64 {
	if i < 0 || i >= len(idx.names) {
		return 0
	}
	return idx.Scores(query)[i]
}

// Search returns up to limit documents with a positive score, best first.
// Ties keep document order. A limit <= 0 returns every match.
func (idx *Index) Search(query string, limit int) []Result {
	scores := idx.Scores(query)
	results := make([]Result, 0, len(scores))
	for i, s := range scores {
		if s > 0 {
			results = append(results, Result{Name: idx.names[i], Index: i, Score: s})
		}
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// weigh turns term frequencies into a TF-IDF vector and its L2 norm.
// Terms outside the corpus vocabulary are dropped.
func (idx *Index) weigh(tf map[string]float64) (map[string]float64, float64) {
	vec := make(map[string]float64, len(tf))
	var sumSq float64
	for term, f := range tf {
		idf, ok := idx.idf[term]
		if !ok {
			continue
		}
		w := f * idf
		vec[term] = w
		sumSq += w * w
	}
	return vec, math.Sqrt(sumSq)
}

func termFrequencies(tokens []string) map[string]float64 {
	tf := make(map[string]float64, len(tokens))
	if len(tokens) == 0 {
		return tf
	}
	for _, tok := range tokens {
		tf[tok]++
	}
	total := float64(len(tokens))
	for term := range tf {
		tf[term] /= total
	}
	return tf
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
