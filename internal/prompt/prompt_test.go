package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/pdfinsight/internal/generation"
	"github.com/hyperjump/pdfinsight/internal/models"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"", V2, false},
		{"v1", V1, false},
		{"V2", V2, false},
		{" v2 ", V2, false},
		{"v3", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestVersion_String(t *testing.T) {
	assert.Equal(t, "v1", V1.String())
	assert.Equal(t, "v2", V2.String())
	assert.Equal(t, "Version(9)", Version(9).String())
}

func TestBuild_V2(t *testing.T) {
	req := V2.Build(Input{
		History: []models.Turn{
			{Role: models.RoleUser, Content: "What is the refund window?"},
			{Role: models.RoleAssistant, Content: "30 days."},
		},
		Context:  "<<chunk=0 source=policy.pdf page=1>>\nRefunds within 30 days.",
		Question: "And for digital goods?",
		Language: models.LanguageEnglish,
	})

	assert.Contains(t, req.System, "Reply only in English.")
	assert.Contains(t, req.System, "Never repeat bullets.")
	assert.Contains(t, req.System, "3 to 6 unique bullet points")
	assert.Contains(t, req.System, "say you do not know")
	assert.Equal(t, "Context:\n<<chunk=0 source=policy.pdf page=1>>\nRefunds within 30 days.\n\nQuestion:\nAnd for digital goods?\n\nAnswer:", req.User)
	require.Len(t, req.History, 2)
	assert.Equal(t, generation.Message{Role: generation.RoleUser, Content: "What is the refund window?"}, req.History[0])
	assert.Equal(t, generation.RoleAssistant, req.History[1].Role)

	msgs := req.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, generation.RoleSystem, msgs[0].Role)
	assert.Equal(t, req.User, msgs[3].Content)
}

func TestBuild_languageInstruction(t *testing.T) {
	req := Default.Build(Input{Question: "q", Language: models.LanguageBengali})
	assert.Contains(t, req.System, "Reply only in Bengali using Bengali script.")
	assert.Nil(t, req.History)
}

func TestBuild_V1IsShorter(t *testing.T) {
	in := Input{Context: "c", Question: "q", Language: models.LanguageEnglish, Temperature: 0.2}
	v1 := V1.Build(in)
	v2 := V2.Build(in)
	assert.Less(t, len(v1.System), len(v2.System))
	assert.NotContains(t, v1.System, "bullet")
	assert.Equal(t, v1.User, v2.User)
	assert.Equal(t, 0.2, v1.Temperature)
}

func TestBuild_emptyContext(t *testing.T) {
	req := V2.Build(Input{Question: "anything?", Language: models.LanguageEnglish})
	assert.Equal(t, "Context:\n\n\nQuestion:\nanything?\n\nAnswer:", req.User)
}
