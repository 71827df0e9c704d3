package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

func TestHeuristicRecognizer_Recognize(t *testing.T) {
	h, err := NewHeuristicRecognizer(DefaultHeuristicConfig())
	require.NoError(t, err)

	tests := []struct {
		name   string
		text   string
		wantOK bool
		want   purchase.Record
	}{
		{
			name:   "added with quantity and catalog",
			text:   "Purchase request added: *Nitrile gloves* (Quantity: 4, Catalog #: NG-100)",
			wantOK: true,
			want:   purchase.Record{ItemName: "Nitrile gloves", Quantity: "4", CatalogNumber: "NG-100"},
		},
		{
			name:   "quoted item with loose fields",
			text:   `Ordered "Pipette rack" catalog: PR-7, qty 2`,
			wantOK: true,
			want:   purchase.Record{ItemName: "Pipette rack", Quantity: "2", CatalogNumber: "PR-7"},
		},
		{
			name:   "url and date cascades",
			text:   "Purchase request added: *Tips* (Quantity: 2) https://example.com/tips 05/01/2024",
			wantOK: true,
			want: purchase.Record{
				ItemName:      "Tips",
				Quantity:      "2",
				Link:          "https://example.com/tips",
				DateOfRequest: "05/01/2024",
			},
		},
		{
			name:   "delimiter fallback",
			text:   "I've requested *Beakers*",
			wantOK: true,
			want:   purchase.Record{ItemName: "Beakers"},
		},
		{
			name:   "fallback skips field labels",
			text:   "item: *link* and *Beaker set*",
			wantOK: true,
			want:   purchase.Record{ItemName: "Beaker set"},
		},
		{
			name: "only labels",
			text: "item: *date*",
		},
		{
			name: "candidate too short",
			text: "quantity *abc*",
		},
		{
			name:   "fallback counts characters not bytes",
			text:   "item requested: *ガラス瓶*",
			wantOK: true,
			want:   purchase.Record{ItemName: "ガラス瓶"},
		},
		{
			name: "multibyte candidate too short",
			text: "item requested: *日本*",
		},
		{
			name: "no indicator",
			text: "see *Beakers* (tomorrow)",
		},
		{
			name: "malformed slash command",
			text: "/purchase_request Pipette tips (Quantity: 5)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := h.Recognize(tt.text)
			require.Equal(t, tt.wantOK, ok, "text: %s", tt.text)
			if !tt.wantOK {
				return
			}
			tt.want.Format = purchase.FormatHeuristic
			tt.want.Confidence = purchase.ConfidenceMedium
			tt.want.MessageText = tt.text
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewHeuristicRecognizer_InvalidPattern(t *testing.T) {
	cfg := DefaultHeuristicConfig()
	cfg.ItemPatterns = append(cfg.ItemPatterns, Pattern{Name: "broken", Regex: "(", Item: 1})

	_, err := NewHeuristicRecognizer(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	cfg = DefaultHeuristicConfig()
	cfg.QuantityPatterns = []string{"["}
	_, err = NewHeuristicRecognizer(cfg)
	require.Error(t, err)
}
