package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cbodonnell/scribble/pkg/repositories/models"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens the database at path and applies the embedded
// migrations. The caller is responsible for calling Close() on the repository.
func NewSQLiteRepository(ctx context.Context, path string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	// sqlite serialises writers anyway, and :memory: is per connection
	db.SetMaxOpenConns(1)

	schema, err := readMigrations("sqlite")
	if err != nil {
		db.Close()
		return nil, err
	}
	for i, migration := range schema {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute migration %d: %v", i+1, err)
		}
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) SaveGameResult(ctx context.Context, result *models.GameResult) error {
	scores, err := encodeScores(result.Scores)
	if err != nil {
		return err
	}

	q := `
	INSERT INTO game_results (room_id, category, total_rounds, winner_id, winner_name, high_score, scores, ended_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?);
	`
	res, err := r.db.ExecContext(ctx, q, result.RoomID, result.Category, result.TotalRounds,
		result.WinnerID, result.WinnerName, result.HighScore, string(scores), toMillis(result.EndedAt))
	if err != nil {
		return fmt.Errorf("failed to insert game result: %v", err)
	}
	if result.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read game result id: %v", err)
	}

	return nil
}

func (r *SQLiteRepository) SaveRound(ctx context.Context, round *models.RoundRecord) error {
	strokes, err := encodeStrokes(round.Strokes)
	if err != nil {
		return err
	}

	q := `
	INSERT INTO rounds (room_id, round_number, drawer_id, drawer_name, word, reason, strokes, ended_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?);
	`
	res, err := r.db.ExecContext(ctx, q, round.RoomID, round.RoundNumber, round.DrawerID,
		round.DrawerName, round.Word, round.Reason, strokes, toMillis(round.EndedAt))
	if err != nil {
		return fmt.Errorf("failed to insert round: %v", err)
	}
	if round.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read round id: %v", err)
	}

	return nil
}

func (r *SQLiteRepository) ListGameResults(ctx context.Context, roomID string) ([]*models.GameResult, error) {
	q := `
	SELECT id, room_id, category, total_rounds, winner_id, winner_name, high_score, scores, ended_at
	FROM game_results WHERE room_id = ? ORDER BY id;
	`
	rows, err := r.db.QueryContext(ctx, q, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query game results: %v", err)
	}
	defer rows.Close()

	results := []*models.GameResult{}
	for rows.Next() {
		result := &models.GameResult{}
		var winnerID, winnerName sql.NullString
		var scores string
		var endedAt int64
		if err := rows.Scan(&result.ID, &result.RoomID, &result.Category, &result.TotalRounds,
			&winnerID, &winnerName, &result.HighScore, &scores, &endedAt); err != nil {
			return nil, fmt.Errorf("failed to scan game result: %v", err)
		}
		if winnerID.Valid {
			result.WinnerID = &winnerID.String
		}
		if winnerName.Valid {
			result.WinnerName = &winnerName.String
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

func (r *SQLiteRepository) ListRounds(ctx context.Context, roomID string) ([]*models.RoundRecord, error) {
	q := `
	SELECT id, room_id, round_number, drawer_id, drawer_name, word, reason, strokes, ended_at
	FROM rounds WHERE room_id = ? ORDER BY id;
	`
	rows, err := r.db.QueryContext(ctx, q, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %v", err)
	}
	defer rows.Close()

	rounds := []*models.RoundRecord{}
	for rows.Next() {
		round, err := scanSQLiteRound(rows)
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

func (r *SQLiteRepository) GetRound(ctx context.Context, id int64) (*models.RoundRecord, error) {
	q := `
	SELECT id, room_id, round_number, drawer_id, drawer_name, word, reason, strokes, ended_at
	FROM rounds WHERE id = ?;
	`
	round, err := scanSQLiteRound(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, err
	}

	return round, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteRound(row scanner) (*models.RoundRecord, error) {
	round := &models.RoundRecord{}
	var strokes []byte
	var endedAt int64
	if err := row.Scan(&round.ID, &round.RoomID, &round.RoundNumber, &round.DrawerID,
		&round.DrawerName, &round.Word, &round.Reason, &strokes, &endedAt); err != nil {
		if err == sql.ErrNoRows {
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
