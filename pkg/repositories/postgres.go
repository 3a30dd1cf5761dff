package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/cbodonnell/scribble/pkg/log"
	"github.com/cbodonnell/scribble/pkg/repositories/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to connStr and applies the embedded migrations.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	pool, err := connectDb(ctx, connStr)
	if err != nil {
		return nil, err
	}

	schema, err := readMigrations("postgres")
	if err != nil {
		pool.Close()
		return nil, err
	}
	for i, migration := range schema {
		if _, err := pool.Exec(ctx, migration); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to execute migration %d: %v", i+1, err)
		}
	}

	return &PostgresRepository{
		pool: pool,
	}, nil
}

func connectDb(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	var username string
	var database string
	err = pool.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to query database: %v", err)
	}

	log.Info("Connected to %s as %s", database, username)

	return pool, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) SaveGameResult(ctx context.Context, result *models.GameResult) error {
	scores, err := encodeScores(result.Scores)
	if err != nil {
		return err
	}

	q := `
	INSERT INTO game_results (room_id, category, total_rounds, winner_id, winner_name, high_score, scores, ended_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id;
	`
	err = r.pool.QueryRow(ctx, q, result.RoomID, result.Category, result.TotalRounds,
		result.WinnerID, result.WinnerName, result.HighScore, string(scores), toMillis(result.EndedAt)).Scan(&result.ID)
	if err != nil {
		return fmt.Errorf("failed to insert game result: %v", err)
	}

	return nil
}

func (r *PostgresRepository) SaveRound(ctx context.Context, round *models.RoundRecord) error {
	strokes, err := encodeStrokes(round.Strokes)
	if err != nil {
		return err
	}

	q := `
	INSERT INTO rounds (room_id, round_number, drawer_id, drawer_name, word, reason, strokes, ended_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id;
	`
	err = r.pool.QueryRow(ctx, q, round.RoomID, round.RoundNumber, round.DrawerID,
		round.DrawerName, round.Word, round.Reason, strokes, toMillis(round.EndedAt)).Scan(&round.ID)
	if err != nil {
		return fmt.Errorf("failed to insert round: %v", err)
	}

	return nil
}

func (r *PostgresRepository) ListGameResults(ctx context.Context, roomID string) ([]*models.GameResult, error) {
	q := `
	SELECT id, room_id, category, total_rounds, winner_id, winner_name, high_score, scores::text, ended_at
	FROM game_results WHERE room_id = $1 ORDER BY id;
	`
	rows, err := r.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query game results: %v", err)
	}
	defer rows.Close()

	results := []*models.GameResult{}
	for rows.Next() {
		result := &models.GameResult{}
		var scores string
		var endedAt int64
		if err := rows.Scan(&result.ID, &result.RoomID, &result.Category, &result.TotalRounds,
			&result.WinnerID, &result.WinnerName, &result.HighScore, &scores, &endedAt); err != nil {
			return nil, fmt.Errorf("failed to scan game result: %v", err)
		}
		if result.Scores, err = decodeScores([]byte(scores)); err != nil {
			return nil, err
		}
		result.EndedAt = fromMillis(endedAt)
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read game results: %v", err)
	}

	return results, nil
}

func (r *PostgresRepository) ListRounds(ctx context.Context, roomID string) ([]*models.RoundRecord, error) {
	q := `
	SELECT id, room_id, round_number, drawer_id, drawer_name, word, reason, strokes, ended_at
	FROM rounds WHERE room_id = $1 ORDER BY id;
	`
	rows, err := r.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %v", err)
	}
	defer rows.Close()

	rounds := []*models.RoundRecord{}
	for rows.Next() {
		round, err := scanPostgresRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rounds: %v", err)
	}

	return rounds, nil
}

func (r *PostgresRepository) GetRound(ctx context.Context, id int64) (*models.RoundRecord, error) {
	q := `
	SELECT id, room_id, round_number, drawer_id, drawer_name, word, reason, strokes, ended_at
	FROM rounds WHERE id = $1;
	`
	return scanPostgresRound(r.pool.QueryRow(ctx, q, id))
}

func scanPostgresRound(row pgx.Row) (*models.RoundRecord, error) {
	round := &models.RoundRecord{}
	var strokes []byte
	var endedAt int64
	if err := row.Scan(&round.ID, &round.RoomID, &round.RoundNumber, &round.DrawerID,
		&round.DrawerName, &round.Word, &round.Reason, &strokes, &endedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan round: %v", err)
	}

	var err error
	if round.Strokes, err = decodeStrokes(strokes); err != nil {
		return nil, err
	}
	round.EndedAt = fromMillis(endedAt)
	return round, nil
}
