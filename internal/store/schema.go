package store

const schema = `
CREATE TABLE anime (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kitsu_id TEXT NOT NULL UNIQUE,
	title_english TEXT,
	title_romaji TEXT,
	synopsis TEXT,
	start_date TEXT,
	episode_count INTEGER,
	subtype TEXT,
	season TEXT,
	year INTEGER,
	poster_image TEXT,
	average_rating REAL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX idx_anime_season_year ON anime(season, year);
CREATE INDEX idx_anime_start_date ON anime(start_date);

CREATE TABLE genres (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE anime_genres (
	anime_id INTEGER NOT NULL,
	genre_id INTEGER NOT NULL,
	PRIMARY KEY (anime_id, genre_id),
	FOREIGN KEY (anime_id) REFERENCES anime(id) ON DELETE CASCADE,
	FOREIGN KEY (genre_id) REFERENCES genres(id) ON DELETE CASCADE
);

CREATE INDEX idx_anime_genres_genre ON anime_genres(genre_id);
`

// migrations contains incremental schema changes applied by version.
// migrations[0] is empty because version 0 uses the base schema.
var migrations = []string{
	"",
}
