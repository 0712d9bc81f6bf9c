package ask

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jinford/doc-rag/internal/core/search"
)

func TestBuildGroundedPrompt(t *testing.T) {
	passages := []*search.RetrievalResult{
		{Score: 0.9, DocID: "f1.md", PassageID: "f1.md_p0", Text: "Hybrid power units arrived in 2014."},
		{Score: 0.4, DocID: "tyres.md", PassageID: "tyres.md_p3", Text: "Tyre strategy matters."},
	}

	prompt := BuildGroundedPrompt("How did hybrids change F1?", passages)

	want := "You are an expert assistant. Use ONLY the provided context passages to answer.\n\n" +
		"QUESTION:\nHow did hybrids change F1?\n\n" +
		"CONTEXT:\n" +
		"[Source 1] (doc=f1.md | passage=f1.md_p0)\nHybrid power units arrived in 2014.\n\n" +
		"[Source 2] (doc=tyres.md | passage=tyres.md_p3)\nTyre strategy matters.\n\n" +
		"INSTRUCTIONS:\n" +
		"- If the answer is not present in the passages, say EXACTLY: \"I don't know from the provided documents.\"\n" +
		"- Cite passages using [Source X].\n" +
		"- Do NOT add external knowledge.\n"

	assert.Equal(t, want, prompt)
}

func TestBuildGroundedPrompt_LabelsFollowListOrder(t *testing.T) {
	passages := []*search.RetrievalResult{
		{DocID: "b", PassageID: "b_p0", Text: "second"},
		{DocID: "a", PassageID: "a_p0", Text: "first"},
	}

	prompt := BuildGroundedPrompt("q", passages)

	assert.Less(t, strings.Index(prompt, "[Source 1] (doc=b"), strings.Index(prompt, "[Source 2] (doc=a"))
	assert.Contains(t, prompt, NoContextAnswer)
}

func TestSourceLabel(t *testing.T) {
	assert.Equal(t, "[Source 3]", SourceLabel(3))
}
