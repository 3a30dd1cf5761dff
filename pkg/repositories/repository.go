package repositories

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/cbodonnell/scribble/pkg/game/types"
	"github.com/cbodonnell/scribble/pkg/messages"
	"github.com/cbodonnell/scribble/pkg/repositories/models"
)

//go:embed migrations
var migrations embed.FS

// Repository archives finished games and rounds.
type Repository interface {
	Close(ctx context.Context) error
	SaveGameResult(ctx context.Context, result *models.GameResult) error
	SaveRound(ctx context.Context, round *models.RoundRecord) error
	// ListGameResults returns the games played in a room, oldest first.
	ListGameResults(ctx context.Context, roomID string) ([]*models.GameResult, error)
	// ListRounds returns the archived rounds of a room, oldest first.
	ListRounds(ctx context.Context, roomID string) ([]*models.RoundRecord, error)
	// GetRound returns an ErrNotFound error when no round has the id.
	GetRound(ctx context.Context, id int64) (*models.RoundRecord, error)
}

// Open connects to the archive named by url. The scheme selects the driver:
// sqlite://<path> or postgres://...
func Open(ctx context.Context, url string) (Repository, error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		return NewSQLiteRepository(ctx, strings.TrimPrefix(url, "sqlite://"))
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresRepository(ctx, url)
	default:
		return nil, fmt.Errorf("unsupported database url %q", url)
	}
}

// readMigrations returns the schema files for a driver in name order.
func readMigrations(driver string) ([]string, error) {
	dir := "migrations/" + driver
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		b, err := migrations.ReadFile(dir + "/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %v", entry.Name(), err)
		}
		out = append(out, string(b))
	}
	return out, nil
}

func encodeScores(scores []models.PlayerScore) ([]byte, error) {
	if scores == nil {
		scores = []models.PlayerScore{}
	}
	b, err := json.Marshal(scores)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scores: %v", err)
	}
	return b, nil
}

func decodeScores(b []byte) ([]models.PlayerScore, error) {
	scores := []models.PlayerScore{}
	if err := json.Unmarshal(b, &scores); err != nil {
		return nil, fmt.Errorf("failed to decode scores: %v", err)
	}
	return scores, nil
}

func encodeStrokes(strokes []types.Stroke) ([]byte, error) {
	b, err := messages.SerializeStrokes(strokes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode strokes: %v", err)
	}
	return b, nil
}

func decodeStrokes(b []byte) ([]types.Stroke, error) {
	strokes, err := messages.DeserializeStrokes(b)
	if err != nil {
		return nil, fmt.Errorf("failed to decode strokes: %v", err)
	}
	return strokes, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
