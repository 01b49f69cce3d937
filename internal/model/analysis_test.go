package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestComputeCautionDefinitive(t *testing.T) {
	deep := DeepAnalysis{
		Lots: []DeepLot{
			{Number: "1", EstimatedValue: f64(1_200_000), CautionDefinitivePct: f64(3)},
			{Number: "2", EstimatedValue: f64(500_000)},
			{Number: "3", CautionDefinitivePct: f64(3)},
			{Number: "4"},
		},
	}

	deep.ComputeCautionDefinitive()

	require.NotNil(t, deep.Lots[0].CautionDefinitiveAmount)
	assert.InDelta(t, 36_000, *deep.Lots[0].CautionDefinitiveAmount, 0.001)

	assert.Nil(t, deep.Lots[1].CautionDefinitiveAmount, "missing percentage leaves the amount unset")
	assert.Nil(t, deep.Lots[2].CautionDefinitiveAmount, "missing estimate leaves the amount unset")
	assert.Nil(t, deep.Lots[3].CautionDefinitiveAmount)
}

func TestDocumentText(t *testing.T) {
	var doc Document
	assert.False(t, doc.HasText())
	assert.Empty(t, doc.Text())

	empty := ""
	doc.OCRStatus = OCRCompleted
	doc.ExtractedText = &empty
	assert.False(t, doc.HasText(), "completed extraction with empty text is not usable text")

	body := "appel d'offres ouvert"
	doc.ExtractedText = &body
	assert.True(t, doc.HasText())
	assert.Equal(t, body, doc.Text())
}
