package exchange

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ContentHash returns a deterministic key for a file's bytes. Practice
// software rewrites the exchange file on every patient switch; the
// hash tells a rewrite with new content apart from a redundant flush
// of the same content.
func ContentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// FileInbox records processed exchange files so a file-system event
// storm does not re-trigger generation for identical content. The
// check is advisory: when the database is unreachable the file is
// processed anyway, because missing a patient switch is worse than a
// duplicate summary refresh.
type FileInbox struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewFileInbox creates an inbox backed by the given pool.
func NewFileInbox(pool *pgxpool.Pool, logger *zap.Logger) *FileInbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileInbox{pool: pool, logger: logger}
}

// MarkIfNew records the content hash and reports whether it was unseen.
func (i *FileInbox) MarkIfNew(ctx context.Context, hash, fileName string) bool {
	if i.pool == nil {
		return true
	}

	query := `
		INSERT INTO exchange_inbox (content_hash, file_name, seen_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (content_hash) DO NOTHING
	`
	tag, err := i.pool.Exec(ctx, query, hash, fileName)
	if err != nil {
		i.logger.Warn("inbox check unavailable, processing anyway",
			zap.String("file", fileName), zap.Error(err))
		return true
	}
	return tag.RowsAffected() > 0
}

// Cleanup removes inbox entries older than the retention window.
func (i *FileInbox) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if i.pool == nil {
		return 0, nil
	}
	tag, err := i.pool.Exec(ctx,
		`DELETE FROM exchange_inbox WHERE seen_at < NOW() - $1::interval`,
		olderThan.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
