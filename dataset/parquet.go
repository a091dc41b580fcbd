package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"
)

// 离线管线固定产出的四个 parquet 文件名。
const (
	FileRanked   = "recommendations.parquet"
	FilePersonal = "personal_als.parquet"
	FileSimilar  = "similar.parquet"
	FilePopular  = "top_popular.parquet"
)

// ParquetLoader 通过 duckdb 读取离线管线产出的 parquet 产物。
// 单个产物读取失败只告警一次并把该来源降级为空，不让服务启动失败。
type ParquetLoader struct {
	Dir             string // 产物目录
	KCandidates     int    // ranked/personal 每用户保留条数
	SimilarPerTrack int    // similar 每曲目保留条数
	PoolSize        int    // 热门池大小
	Log             zerolog.Logger
}

func (l *ParquetLoader) Load(ctx context.Context) (*Index, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()

	ranked := l.loadUserRecs(ctx, db, FileRanked, "ranked")
	personal := l.loadUserRecs(ctx, db, FilePersonal, "personal")
	similar := l.loadSimilar(ctx, db)
	popular := l.loadPopular(ctx, db)

	ix := NewIndex(ranked, personal, similar, popular)
	stats := ix.Stats()
	l.Log.Info().
		Int("ranked_users", stats.RankedUsers).
		Int("personal_users", stats.PersonalUsers).
		Int("similar_tracks", stats.SimilarTracks).
		Int("popular_pool", stats.PopularPool).
		Msg("datasets loaded")
	return ix, nil
}

// loadUserRecs 读取 (user_id, track_id, rank, score) 形状的产物，
// 按用户分组并保留每用户前 KCandidates 条。
func (l *ParquetLoader) loadUserRecs(ctx context.Context, db *sql.DB, file, source string) map[int64][]Entry {
	path := filepath.Join(l.Dir, file)
	rows, err := db.QueryContext(ctx,
		`SELECT user_id, track_id, score FROM read_parquet(?) ORDER BY user_id, rank`, path)
	if err != nil {
		l.Log.Warn().Err(err).Str("source", source).Str("path", path).Msg("artifact unavailable, source degraded to empty")
		return nil
	}
	defer rows.Close()

	out := make(map[int64][]Entry)
	for rows.Next() {
		var userID, trackID int64
		var score float64
		if err := rows.Scan(&userID, &trackID, &score); err != nil {
			l.Log.Warn().Err(err).Str("source", source).Msg("artifact row skipped")
			continue
		}
		if l.KCandidates > 0 && len(out[userID]) >= l.KCandidates {
			continue
		}
		out[userID] = append(out[userID], Entry{TrackID: trackID, Score: score})
	}
	return out
}

// loadSimilar 读取 (track_id, similar_track_id, rank, score) 形状的相似表。
func (l *ParquetLoader) loadSimilar(ctx context.Context, db *sql.DB) map[int64][]Entry {
	path := filepath.Join(l.Dir, FileSimilar)
	rows, err := db.QueryContext(ctx,
		`SELECT track_id, similar_track_id, score FROM read_parquet(?) ORDER BY track_id, rank`, path)
	if err != nil {
		l.Log.Warn().Err(err).Str("source", "similar").Str("path", path).Msg("artifact unavailable, source degraded to empty")
		return nil
	}
	defer rows.Close()

	out := make(map[int64][]Entry)
	for rows.Next() {
		var trackID, similarID int64
		var score float64
		if err := rows.Scan(&trackID, &similarID, &score); err != nil {
			l.Log.Warn().Err(err).Str("source", "similar").Msg("artifact row skipped")
			continue
		}
		if l.SimilarPerTrack > 0 && len(out[trackID]) >= l.SimilarPerTrack {
			continue
		}
		out[trackID] = append(out[trackID], Entry{TrackID: similarID, Score: score})
	}
	return out
}

// loadPopular 读取按热度排好序的曲目列表，保留前 PoolSize 条。
func (l *ParquetLoader) loadPopular(ctx context.Context, db *sql.DB) []int64 {
	path := filepath.Join(l.Dir, FilePopular)
	rows, err := db.QueryContext(ctx,
		`SELECT track_id FROM read_parquet(?) LIMIT ?`, path, l.PoolSize)
	if err != nil {
		l.Log.Warn().Err(err).Str("source", "popular").Str("path", path).Msg("artifact unavailable, source degraded to empty")
		return nil
	}
	defer rows.Close()

	out := make([]int64, 0, l.PoolSize)
	for rows.Next() {
		var trackID int64
		if err := rows.Scan(&trackID); err != nil {
			l.Log.Warn().Err(err).Str("source", "popular").Msg("artifact row skipped")
			continue
		}
		out = append(out, trackID)
	}
	return out
}

// SeedUsers 从精排产物中取前 take 个用户 id，供缓存预热驱动挑选种子用户。
func SeedUsers(ctx context.Context, dir string, take int) ([]int64, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()

	path := filepath.Join(dir, FileRanked)
	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM read_parquet(?) LIMIT ?`, path, take)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer rows.Close()

	out := make([]int64, 0, take)
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		out = append(out, userID)
	}
	return out, rows.Err()
}
