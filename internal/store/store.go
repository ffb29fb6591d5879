// Package store persists catalog records to SQLite. Upserts are keyed by the
// upstream Kitsu ID, so repeated sync runs are convergent.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/kazewatari/anisync/internal/domain"
)

// Store wraps the SQLite connection and the SQL builder.
type Store struct {
	handler  *sql.DB
	log      zerolog.Logger
	squirrel sq.StatementBuilderType
}

// NewStore opens (or creates) the catalog database in dir and migrates the
// schema to the current version.
func NewStore(dir string, log zerolog.Logger) (*Store, error) {
	s := &Store{
		log:      log.With().Str("component", "store").Logger(),
		squirrel: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}

	var (
		err error
		DSN = filepath.Join(dir, "anisync.db") + "?_pragma=busy_timeout%3d1000"
	)

	s.handler, err = sql.Open("sqlite", DSN)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to database")
	}

	if _, err = s.handler.Exec(`PRAGMA journal_mode = wal;`); err != nil {
		return nil, errors.Wrap(err, "unable to enable WAL mode")
	}

	if _, err = s.handler.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, errors.Wrap(err, "unable to enable foreign keys")
	}

	if err := s.migrate(); err != nil {
		s.handler.Close()
		return nil, errors.Wrap(err, "failed to migrate schema")
	}

	return s, nil
}

// migrate creates or upgrades the schema using PRAGMA user_version.
func (s *Store) migrate() error {
	var version int
	if err := s.handler.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return errors.Wrap(err, "failed to query schema version")
	}

	if version == len(migrations) {
		return nil
	} else if version > len(migrations) {
		return errors.Errorf("database schema version (%d) is newer than supported (%d)", version, len(migrations))
	}

	s.log.Info().Msgf("Beginning database schema upgrade from version %v to version: %v", version, len(migrations))

	tx, err := s.handler.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if version == 0 {
		if _, err := tx.Exec(schema); err != nil {
			return errors.Wrap(err, "failed to initialize schema")
		}
		s.log.Info().Msg("Created initial database schema")
	} else {
		for i := version; i < len(migrations); i++ {
			if migrations[i] == "" {
				continue
			}
			s.log.Info().Msgf("Upgrading database schema to version: %v", i+1)
			if _, err := tx.Exec(migrations[i]); err != nil {
				return errors.Wrapf(err, "failed to execute migration #%v", i)
			}
		}
	}

	if _, err = tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
		return errors.Wrap(err, "failed to bump schema version")
	}

	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if _, err := s.handler.Exec(`PRAGMA optimize;`); err != nil {
		return errors.Wrap(err, "query planner optimization")
	}
	return s.handler.Close()
}

// UpsertBatch writes one page of records. Each record is committed in its own
// transaction so an interrupted run leaves no partial record behind; a failed
// record is counted and the batch continues.
func (s *Store) UpsertBatch(ctx context.Context, records []domain.Anime) domain.BatchResult {
	var result domain.BatchResult

	for i := range records {
		created, links, err := s.upsertRecord(ctx, &records[i])
		if err != nil {
			result.Failed++
			recordsFailedTotal.Inc()
			s.log.Warn().
				Err(err).
				Str("kitsu_id", records[i].KitsuID).
				Str("title", records[i].Title()).
				Msg("Record upsert failed")
			continue
		}
		result.Upserted++
		result.GenresCreated += created
		result.GenreLinksCreated += links
		recordsUpsertedTotal.Inc()
	}

	return result
}

// upsertRecord writes one record plus its genre reconciliation atomically.
// Returns the number of genres and anime-genre links newly created.
func (s *Store) upsertRecord(ctx context.Context, a *domain.Anime) (genresCreated, linksCreated int, err error) {
	if a.KitsuID == "" {
		return 0, 0, errors.New("record has no kitsu id")
	}

	tx, err := s.handler.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := time.Now()
	query, args, err := s.squirrel.
		Insert("anime").
		Columns("kitsu_id", "title_english", "title_romaji", "synopsis", "start_date",
			"episode_count", "subtype", "season", "year", "poster_image", "average_rating",
			"created_at", "updated_at").
		Values(a.KitsuID, a.TitleEnglish, a.TitleRomaji, a.Synopsis, a.StartDate,
			a.EpisodeCount, a.Subtype, string(a.Season), a.Year, a.PosterImage, a.AverageRating,
			now, now).
		Suffix(`ON CONFLICT (kitsu_id) DO UPDATE SET
			title_english = excluded.title_english,
			title_romaji = excluded.title_romaji,
			synopsis = excluded.synopsis,
			start_date = excluded.start_date,
			episode_count = excluded.episode_count,
			subtype = excluded.subtype,
			season = excluded.season,
			year = excluded.year,
			poster_image = excluded.poster_image,
			average_rating = excluded.average_rating,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to build upsert query")
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, 0, errors.Wrap(err, "failed to upsert anime")
	}

	var animeID int64
	query, args, err = s.squirrel.
		Select("id").
		From("anime").
		Where(sq.Eq{"kitsu_id": a.KitsuID}).
		ToSql()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to build id query")
	}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&animeID); err != nil {
		return 0, 0, errors.Wrap(err, "failed to resolve anime id")
	}

	for _, genre := range a.Genres {
		genreID, created, err := s.ensureGenre(ctx, tx, genre)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "failed to reconcile genre %q", genre)
		}
		if created {
			genresCreated++
		}

		linked, err := s.linkGenre(ctx, tx, animeID, genreID)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "failed to link genre %q", genre)
		}
		if linked {
			linksCreated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, errors.Wrap(err, "failed to commit record")
	}

	return genresCreated, linksCreated, nil
}

// ensureGenre returns the genre id, creating the genre when missing.
func (s *Store) ensureGenre(ctx context.Context, tx *sql.Tx, name string) (int64, bool, error) {
	query, args, err := s.squirrel.
		Select("id").
		From("genres").
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to build genre query")
	}

	var id int64
	err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, errors.Wrap(err, "failed to query genre")
	}

	query, args, err = s.squirrel.
		Insert("genres").
		Columns("name").
		Values(name).
		ToSql()
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to build genre insert")
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to insert genre")
	}

	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to read genre id")
	}

	return id, true, nil
}

// linkGenre creates the anime-genre link if absent. Returns true when a new
// link row was written.
func (s *Store) linkGenre(ctx context.Context, tx *sql.Tx, animeID, genreID int64) (bool, error) {
	query, args, err := s.squirrel.
		Insert("anime_genres").
		Columns("anime_id", "genre_id").
		Values(animeID, genreID).
		Suffix("ON CONFLICT (anime_id, genre_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, "failed to build link insert")
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, "failed to insert link")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}

	return affected > 0, nil
}

// CountAnime returns the number of stored anime records.
func (s *Store) CountAnime(ctx context.Context) (int, error) {
	var n int
	if err := s.handler.QueryRowContext(ctx, "SELECT COUNT(*) FROM anime").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count anime")
	}
	return n, nil
}

// GetAnimeByKitsuID loads one record with its genres, mainly for tests and
// spot checks.
func (s *Store) GetAnimeByKitsuID(ctx context.Context, kitsuID string) (*domain.Anime, error) {
	query, args, err := s.squirrel.
		Select("kitsu_id", "title_english", "title_romaji", "synopsis", "start_date",
			"episode_count", "subtype", "season", "year", "poster_image", "average_rating").
		From("anime").
		Where(sq.Eq{"kitsu_id": kitsuID}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build anime query")
	}

	var a domain.Anime
	var season string
	err = s.handler.QueryRowContext(ctx, query, args...).Scan(
		&a.KitsuID, &a.TitleEnglish, &a.TitleRomaji, &a.Synopsis, &a.StartDate,
		&a.EpisodeCount, &a.Subtype, &season, &a.Year, &a.PosterImage, &a.AverageRating)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load anime")
	}
	a.Season = domain.Season(season)

	query, args, err = s.squirrel.
		Select("g.name").
		From("genres g").
		Join("anime_genres ag ON ag.genre_id = g.id").
		Join("anime a ON a.id = ag.anime_id").
		Where(sq.Eq{"a.kitsu_id": kitsuID}).
		OrderBy("g.name").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build genres query")
	}

	rows, err := s.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load genres")
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan genre")
		}
		a.Genres = append(a.Genres, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating genres")
	}

	return &a, nil
}
