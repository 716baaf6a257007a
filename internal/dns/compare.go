package dns

// NeedsUpdate reports whether existing differs from desired in any field the
// controller lets us change. Domain is the match key and is not compared.
// Values are compared verbatim, without case or whitespace normalisation.
func NeedsUpdate(existing, desired Policy) bool {
	return existing.Type != desired.Type ||
		!equalAddress(existing.IPv4Address, desired.IPv4Address) ||
		existing.TTLSeconds != desired.TTLSeconds ||
		existing.Enabled != desired.Enabled
}

func equalAddress(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
