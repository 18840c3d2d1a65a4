package tracking

import "context"

// HistoryStore is the bounded, newest-first persistence of accepted readings
// plus a single "latest" slot. It has no dedup knowledge.
type HistoryStore interface {
	// SeedIfEmpty stores bootstrap as latest and sole history entry when both
	// are absent. It reports whether seeding happened.
	SeedIfEmpty(ctx context.Context, bootstrap Reading) (bool, error)
	// Append overwrites latest, prepends to history and trims history to the cap.
	Append(ctx context.Context, r Reading) error
	// Latest returns the latest reading and whether one exists.
	Latest(ctx context.Context) (Reading, bool, error)
	// History returns up to limit readings newest-first starting at offset.
	History(ctx context.Context, offset, limit int) ([]Reading, error)
}

// DedupIndex is the persistent set of fingerprints already recorded.
type DedupIndex interface {
	Seen(ctx context.Context, fp Fingerprint) (bool, error)
	// Record is idempotent.
	Record(ctx context.Context, fp Fingerprint) error
}
