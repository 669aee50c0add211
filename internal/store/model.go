package store

// Product is the stored representation of a catalog product. LastModified is
// an RFC 3339 timestamp string with millisecond precision and serves as the
// optimistic-concurrency token: it changes on every successful mutation and
// conditional writes compare it by string equality.
type Product struct {
	ID           string
	Name         string
	ImageURL     string
	LastModified string
	Deleted      bool
}

// Snapshot is an immutable copy of a product's state captured before an
// update or a soft delete, keyed by (ProductID, LastModified).
type Snapshot struct {
	ProductID    string
	Name         string
	ImageURL     string
	LastModified string
	Deleted      bool
}

// SnapshotOf captures the pre-mutation state of a product.
func SnapshotOf(p Product) Snapshot {
	return Snapshot{
		ProductID:    p.ID,
		Name:         p.Name,
		ImageURL:     p.ImageURL,
		LastModified: p.LastModified,
		Deleted:      p.Deleted,
	}
}
