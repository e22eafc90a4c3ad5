package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint at a 1-hour TTL. The pipeline's stage prompts are fixed per
// process, so every session after the first reads them from the cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "1h",
			},
		},
	}
}
