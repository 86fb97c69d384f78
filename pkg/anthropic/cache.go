package anthropic

// CachedSystem builds a system block with a cache breakpoint. The triage and
// deep-analysis instructions are identical across a run, so every call after
// the first reads them from the prompt cache.
func CachedSystem(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "5m"},
		},
	}
}
