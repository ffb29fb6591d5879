package domain

// Page is one decoded catalog page.
type Page struct {
	Records []Anime

	// HasNext reports whether the upstream advertises a further page.
	HasNext bool
}
