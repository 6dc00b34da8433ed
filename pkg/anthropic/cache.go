package anthropic

// BuildCachedSystemBlocks returns a single system block with a cache
// breakpoint. Repeated calls that share the same system prompt (one per
// image of a document, for instance) then read it from the prompt cache.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: ttl},
		},
	}
}
