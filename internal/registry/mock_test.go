package registry

// countingLookup records every membership check.
type countingLookup struct {
	known map[string]bool
	calls int
}

func (c *countingLookup) IsKnownClient(name string) bool {
	c.calls++
	return c.known[name]
}
