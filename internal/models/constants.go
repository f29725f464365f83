package models

const (
	MetaSourceID      = "source_id"
	MetaSplitID       = "split_id"
	MetaSplitIdxStart = "split_idx_start"
	ThinkTag          = `(?s)<think>.*?</think>`
	ContextSeparator  = "\n---\n"
)

var (
	MovieAnswerPromptTemplate = `You are a movie expert. Answer the question using only the movies described below.
If none of them fit, say so.
<movies>
%s
</movies>
<question>
%s
</question>
`
)
