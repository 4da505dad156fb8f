package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
)

type passageRepository struct {
	pool *pgxpool.Pool
}

// NewPassageRepository creates a pgvector-backed domain.PassageStore.
func NewPassageRepository(pool *pgxpool.Pool) domain.PassageStore {
	return &passageRepository{pool: pool}
}

type dbExecutor interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func (r *passageRepository) getExecutor(ctx context.Context) dbExecutor {
	if tx := ExtractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// SimilaritySearch ranks passages by cosine similarity to the query
// vector. The metadata filter is a hard SQL constraint: a passage whose
// unit differs from the filter can never appear in the result, whatever
// its score. Ties break by insertion order (id) for reproducibility.
func (r *passageRepository) SimilaritySearch(ctx context.Context, queryVector []float32, filter *domain.SearchFilter, limit int) ([]domain.ScoredPassage, error) {
	query := `
		SELECT id, text, unit_id, unit_name, category, title, source_url,
		       building, floor, room, created_at,
		       1 - (embedding <=> $1) AS score
		FROM passages
	`
	args := []interface{}{pgvector.NewVector(queryVector)}

	if filter != nil {
		conds := ""
		if filter.Unit != "" {
			args = append(args, filter.Unit)
			conds = fmt.Sprintf("unit_id = $%d", len(args))
		}
		if filter.Category != "" {
			args = append(args, string(filter.Category))
			if conds != "" {
				conds += " AND "
			}
			conds += fmt.Sprintf("category = $%d", len(args))
		}
		if conds != "" {
			query += " WHERE " + conds
		}
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY embedding <=> $1, id LIMIT $%d", len(args))

	rows, err := r.getExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, classifyStoreError(err)
	}
	defer rows.Close()

	var results []domain.ScoredPassage
	for rows.Next() {
		var p domain.Passage
		var score float32
		var category string
		if err := rows.Scan(
			&p.ID, &p.Text, &p.Unit, &p.UnitName, &category, &p.Title,
			&p.SourceURL, &p.Building, &p.Floor, &p.Room, &p.CreatedAt, &score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		p.Category = domain.ParseCategory(category)
		results = append(results, domain.ScoredPassage{Passage: p, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStoreError(err)
	}
	return results, nil
}

func (r *passageRepository) DeleteBySource(ctx context.Context, sourceURL string) error {
	_, err := r.getExecutor(ctx).Exec(ctx, `DELETE FROM passages WHERE source_url = $1`, sourceURL)
	if err != nil {
		return fmt.Errorf("failed to delete passages for source: %w", err)
	}
	return nil
}

func (r *passageRepository) BulkInsert(ctx context.Context, passages []domain.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(passages))
	for i, p := range passages {
		rows[i] = []interface{}{
			p.ID, p.Text, p.Embedding, p.Unit, p.UnitName, string(p.Category),
			p.Title, p.SourceURL, p.Building, p.Floor, p.Room,
			p.EmbedderVersion, p.CreatedAt,
		}
	}

	_, err := r.getExecutor(ctx).CopyFrom(
		ctx,
		pgx.Identifier{"passages"},
		[]string{"id", "text", "embedding", "unit_id", "unit_name", "category", "title", "source_url", "building", "floor", "room", "embedder_version", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk insert passages: %w", err)
	}
	return nil
}

// classifyStoreError maps low-level query failures onto the store error
// taxonomy so the pipeline can distinguish timeouts from unreachability.
func classifyStoreError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", domain.ErrStoreTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
