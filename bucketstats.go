package bucketstore

import (
	"context"
	"slices"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// BucketStats describes how entries are spread over buckets.
type BucketStats struct {
	Rows        int     // Rows stored.
	CorruptRows int     // Rows that could not be decoded.
	Entries     int     // Live entries.
	Expired     int     // Expired entries not yet purged.
	Mean        float64 // Mean live entries per row.
	StdDev      float64 // Standard deviation of live entries per row.
	P95         float64 // 95th percentile of live entries per row.
	Max         int     // Largest row, in live entries.
}

// BucketStats scans every row and reports the distribution of entries over
// buckets. Rows are read without bucket locks.
func (s *BucketStore) BucketStats(ctx context.Context) (BucketStats, error) {
	conn, done, err := s.acquire(ctx)
	if err != nil {
		return BucketStats{}, err
	}
	defer done()

	rows, err := conn.StreamAll(ctx)
	if err != nil {
		return BucketStats{}, unavailable("streaming rows", err)
	}
	defer rows.Close()

	var (
		out    BucketStats
		counts []float64
		now    = s.now()
	)
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return BucketStats{}, err
		}
		row := rows.Row()
		out.Rows++

		b, err := s.codec.Decode(row.BucketID, row.Payload)
		if err != nil {
			out.CorruptRows++
			s.logger.Warn("skipping corrupt row", zap.Uint32("bucket", row.BucketID), zap.Error(err))
			continue
		}

		live := 0
		for _, e := range b.Entries() {
			if e.IsExpired(now) {
				out.Expired++
				continue
			}
			live++
		}
		out.Entries += live
		out.Max = max(out.Max, live)
		counts = append(counts, float64(live))
	}
	if err := rows.Err(); err != nil {
		return BucketStats{}, unavailable("streaming rows", err)
	}

	if len(counts) > 0 {
		out.Mean, out.StdDev = stat.MeanStdDev(counts, nil)
		if len(counts) == 1 {
			out.StdDev = 0
		}
		slices.Sort(counts)
		out.P95 = stat.Quantile(0.95, stat.Empirical, counts, nil)
	}
	return out, nil
}
