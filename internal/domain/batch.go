package domain

// BatchResult aggregates the outcome of one page's worth of storage writes.
// A record failure is counted, not fatal; the batch continues.
type BatchResult struct {
	Upserted          int
	Failed            int
	GenresCreated     int
	GenreLinksCreated int
}
