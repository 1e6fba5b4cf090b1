// Package faq implements the keyword-matched FAQ knowledge base that backs
// the assistant's factual answers.
package faq

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Fixed answers used when the knowledge base cannot serve a real one. The
// assistant relays these verbatim instead of guessing.
const (
	// NotFoundAnswer is returned when no entry matches the question.
	NotFoundAnswer = "I could not find that exact detail in my FAQ data. A teammate can confirm this for you."

	// UnavailableAnswer is returned when the knowledge file cannot be read.
	UnavailableAnswer = "I could not load the FAQ data properly. A teammate can confirm this detail for you."
)

// Item is one question/answer pair.
type Item struct {
	Question string `json:"q"`
	Answer   string `json:"a"`
}

// Pricing holds structured pricing facts that get special-cased ahead of the
// generic question matching.
type Pricing struct {
	PaymentGateway map[string]string `json:"payment_gateway"`
}

// KnowledgeBase is the decoded knowledge file.
type KnowledgeBase struct {
	FAQ     []Item  `json:"faq"`
	Pricing Pricing `json:"pricing"`
}

// Result is a lookup outcome. Matched is false when Answer is one of the
// fixed fallback answers.
type Result struct {
	Answer  string `json:"answer"`
	Matched bool   `json:"matched"`
}

// Store serves lookups from a knowledge file on disk.
//
// The file is read on every lookup: it is operator-editable data, not part of
// the frozen application configuration, so edits take effect without a
// restart.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore returns a store reading from path.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Check verifies the knowledge file is readable and well-formed.
// Called at start-up so a broken file is reported before the first question.
func (s *Store) Check() error {
	_, err := s.load()
	return err
}

// Lookup answers a question from the knowledge file. Load failures are
// logged and reported as the fixed unavailable answer.
func (s *Store) Lookup(query string) Result {
	s.logger.Info("looking up FAQ", zap.String("query", query))

	kb, err := s.load()
	if err != nil {
		s.logger.Error("knowledge base unavailable", zap.Error(err))
		return Result{Answer: UnavailableAnswer}
	}
	return kb.Lookup(query)
}

func (s *Store) load() (*KnowledgeBase, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	var kb KnowledgeBase
	if err := json.Unmarshal(data, &kb); err != nil {
		return nil, fmt.Errorf("parse knowledge base: %w", err)
	}
	return &kb, nil
}

// Lookup answers a question from the in-memory knowledge base.
//
// Pricing questions about UPI are special-cased against the structured
// pricing facts. Everything else is scored per entry: the query is lowercased,
// question marks dropped, and each word longer than two runes counts once when
// it appears in the entry's combined question and answer text. The highest
// strictly-positive score wins; ties keep the earliest entry.
func (kb *KnowledgeBase) Lookup(query string) Result {
	q := strings.ToLower(query)

	if strings.Contains(q, "upi") && containsAny(q, "price", "pricing", "charge", "fee", "cost") {
		if upi := kb.Pricing.PaymentGateway["upi"]; upi != "" {
			answer := "UPI payments are " + upi + "."
			if gst := kb.Pricing.PaymentGateway["gst"]; gst != "" {
				answer += " " + gst
			}
			return Result{Answer: answer, Matched: true}
		}
	}

	words := queryWords(q)

	bestScore := 0
	bestAnswer := ""
	for _, item := range kb.FAQ {
		text := strings.ToLower(item.Question + " " + item.Answer)
		score := 0
		for _, w := range words {
			if strings.Contains(text, w) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestAnswer = item.Answer
		}
	}

	if bestScore > 0 && bestAnswer != "" {
		return Result{Answer: bestAnswer, Matched: true}
	}
	return Result{Answer: NotFoundAnswer}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// queryWords splits a lowercased query into scoring words, dropping anything
// two runes or shorter.
func queryWords(q string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ReplaceAll(q, "?", " ")) {
		if utf8.RuneCountInString(w) > 2 {
			words = append(words, w)
		}
	}
	return words
}
