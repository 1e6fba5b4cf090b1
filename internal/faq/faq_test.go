package faq

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testKB() *KnowledgeBase {
	return &KnowledgeBase{
		FAQ: []Item{
			{Question: "What does the product do?", Answer: "It accepts online payments for businesses."},
			{Question: "Do you have a free tier?", Answer: "Yes, there is a free tier with standard pricing beyond it."},
			{Question: "Who is the product for?", Answer: "Businesses of any size accepting payments online."},
		},
		Pricing: Pricing{
			PaymentGateway: map[string]string{
				"upi":   "0% per transaction",
				"cards": "2% per transaction",
				"gst":   "Additional 18% GST is applicable.",
			},
		},
	}
}

// TestLookupUPIPricing tests the structured-pricing special case.
func TestLookupUPIPricing(t *testing.T) {
	kb := testKB()

	res := kb.Lookup("How much do you charge for UPI payments?")
	assert.True(t, res.Matched)
	assert.Equal(t, "UPI payments are 0% per transaction. Additional 18% GST is applicable.", res.Answer)

	// Without GST info the sentence ends after the price.
	delete(kb.Pricing.PaymentGateway, "gst")
	res = kb.Lookup("what is the upi fee")
	assert.Equal(t, "UPI payments are 0% per transaction.", res.Answer)
}

// TestLookupUPIRequiresPricingWord tests that mentioning UPI alone does not
// trigger the special case.
func TestLookupUPIRequiresPricingWord(t *testing.T) {
	kb := testKB()

	res := kb.Lookup("do you support upi")
	assert.NotContains(t, res.Answer, "UPI payments are")
}

// TestLookupUPIFallsThroughWhenUnpriced tests the special case with no upi
// entry in the pricing facts.
func TestLookupUPIFallsThroughWhenUnpriced(t *testing.T) {
	kb := testKB()
	delete(kb.Pricing.PaymentGateway, "upi")

	res := kb.Lookup("upi cost")
	assert.False(t, res.Matched)
	assert.Equal(t, NotFoundAnswer, res.Answer)
}

// TestLookupScoring tests the keyword scoring over question and answer text.
func TestLookupScoring(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    string
		matched bool
	}{
		{
			name:    "best scoring entry wins",
			query:   "tell me about the free tier",
			want:    "Yes, there is a free tier with standard pricing beyond it.",
			matched: true,
		},
		{
			name:    "question mark is stripped before matching",
			query:   "free tier?",
			want:    "Yes, there is a free tier with standard pricing beyond it.",
			matched: true,
		},
		{
			name:    "answer text counts toward the score",
			query:   "online payments businesses",
			want:    "It accepts online payments for businesses.",
			matched: true,
		},
		{
			name:    "short words are ignored",
			query:   "is it an do we",
			want:    NotFoundAnswer,
			matched: false,
		},
		{
			name:    "no overlap",
			query:   "quantum blockchain telescope",
			want:    NotFoundAnswer,
			matched: false,
		},
	}

	kb := testKB()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := kb.Lookup(tt.query)
			assert.Equal(t, tt.want, res.Answer)
			assert.Equal(t, tt.matched, res.Matched)
		})
	}
}

// TestLookupTieKeepsFirst tests that equal scores keep the earliest entry.
func TestLookupTieKeepsFirst(t *testing.T) {
	kb := &KnowledgeBase{FAQ: []Item{
		{Question: "alpha topic", Answer: "first answer"},
		{Question: "alpha topic", Answer: "second answer"},
	}}

	res := kb.Lookup("alpha topic")
	assert.Equal(t, "first answer", res.Answer)
}

// TestLookupEmptyKnowledgeBase tests the fallback with no entries at all.
func TestLookupEmptyKnowledgeBase(t *testing.T) {
	kb := &KnowledgeBase{}
	res := kb.Lookup("anything at all")
	assert.False(t, res.Matched)
	assert.Equal(t, NotFoundAnswer, res.Answer)
}

// TestStoreLookup tests reading the knowledge file from disk per lookup.
func TestStoreLookup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faq.json")
	content := `{
		"faq": [{"q": "What does the product do?", "a": "It accepts online payments."}],
		"pricing": {"payment_gateway": {"upi": "0% per transaction"}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	store := NewStore(path, zap.NewNop())
	require.NoError(t, store.Check())

	res := store.Lookup("what does the product do?")
	assert.True(t, res.Matched)
	assert.Equal(t, "It accepts online payments.", res.Answer)

	// Edits are picked up without restarting.
	updated := `{"faq": [{"q": "What does the product do?", "a": "It does everything now."}]}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	res = store.Lookup("what does the product do?")
	assert.Equal(t, "It does everything now.", res.Answer)
}

// TestStoreUnavailable tests missing and corrupt knowledge files.
func TestStoreUnavailable(t *testing.T) {
	missing := NewStore(filepath.Join(t.TempDir(), "nope.json"), zap.NewNop())
	assert.Error(t, missing.Check())
	res := missing.Lookup("anything")
	assert.False(t, res.Matched)
	assert.Equal(t, UnavailableAnswer, res.Answer)

	path := filepath.Join(t.TempDir(), "faq.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	corrupt := NewStore(path, zap.NewNop())
	assert.Error(t, corrupt.Check())
	assert.Equal(t, UnavailableAnswer, corrupt.Lookup("anything").Answer)
}
