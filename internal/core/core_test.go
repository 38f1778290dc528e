package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArticleOptionalContent(t *testing.T) {
	a := Article{Title: "无正文"}
	assert.False(t, a.HasContent())
	assert.Equal(t, "", a.ContentText())

	a.Content = StringPtr("正文")
	assert.True(t, a.HasContent())
	assert.Equal(t, "正文", a.ContentText())

	a.Content = StringPtr("")
	assert.False(t, a.HasContent())
}

func TestRuneLenCountsCharacters(t *testing.T) {
	assert.Equal(t, 4, RuneLen("美联储a"))
	assert.Equal(t, 0, RuneLen(""))
}

func TestClaimKindLabel(t *testing.T) {
	assert.Equal(t, "金价断言", ClaimGoldPrice.Label())
	assert.Equal(t, "custom", ClaimKind("custom").Label())
}

func TestQualityResultJSONKeepsNullableFields(t *testing.T) {
	meta := ReportMetadata{RunID: "run-1"}
	data, err := json.Marshal(meta)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	v, ok := decoded["quality_check"]
	require.True(t, ok, "quality_check must be present even when disabled")
	assert.Nil(t, v)
}
