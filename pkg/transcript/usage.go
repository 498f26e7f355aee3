package transcript

// Usage holds per-step token counts as reported by the backend. Absent
// figures stay nil; nil is distinct from zero and survives merging, so a sum
// never invents a count the backend did not report.
type Usage struct {
	InputTokens     *int64 `json:"input_tokens,omitempty"`
	OutputTokens    *int64 `json:"output_tokens,omitempty"`
	TotalTokens     *int64 `json:"total_tokens,omitempty"`
	CachedTokens    *int64 `json:"cached_tokens,omitempty"`
	ReasoningTokens *int64 `json:"reasoning_tokens,omitempty"`
}

// Count wraps a literal token count for building Usage values.
func Count(n int64) *int64 {
	return &n
}

// SumUsage merges two usage reports additively. The merge is commutative and
// associative: nil+nil stays nil, nil+x is x. Either argument may be nil.
func SumUsage(a, b *Usage) *Usage {
	if a == nil {
		return b.clone()
	}
	if b == nil {
		return a.clone()
	}
	return &Usage{
		InputTokens:     sumTokens(a.InputTokens, b.InputTokens),
		OutputTokens:    sumTokens(a.OutputTokens, b.OutputTokens),
		TotalTokens:     sumTokens(a.TotalTokens, b.TotalTokens),
		CachedTokens:    sumTokens(a.CachedTokens, b.CachedTokens),
		ReasoningTokens: sumTokens(a.ReasoningTokens, b.ReasoningTokens),
	}
}

func (u *Usage) clone() *Usage {
	if u == nil {
		return nil
	}
	return &Usage{
		InputTokens:     cloneTokens(u.InputTokens),
		OutputTokens:    cloneTokens(u.OutputTokens),
		TotalTokens:     cloneTokens(u.TotalTokens),
		CachedTokens:    cloneTokens(u.CachedTokens),
		ReasoningTokens: cloneTokens(u.ReasoningTokens),
	}
}

func sumTokens(a, b *int64) *int64 {
	switch {
	case a == nil:
		return cloneTokens(b)
	case b == nil:
		return cloneTokens(a)
	default:
		n := *a + *b
		return &n
	}
}

func cloneTokens(n *int64) *int64 {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
