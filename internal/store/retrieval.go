package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/agentmemory/memoryd/internal/models"
)

// SearchParams bounds and filters a lexical candidate search (spec §4.G
// Retrieval, step 1-2).
type SearchParams struct {
	TenantID             string
	QueryText            string
	CallerChannel        models.Channel
	AllowedSensitivities []models.Sensitivity
	Scope                models.Scope
	SubjectType          string
	SubjectID            string
	ProjectID            string
	CandidatePoolMax     int
	Alpha, Beta, Gamma   float64
	HalfLife             time.Duration
	Now                  time.Time
}

// ScoredChunk pairs an effective chunk with its retrieval rank and score.
type ScoredChunk struct {
	Chunk      models.EffectiveChunk
	Similarity float64
	Score      float64
	FTSRank    int // 1-based rank in the lexical candidate list; 0 if absent
}

// SearchChunksLexical runs full-text candidate generation over
// effective_chunks.text, excluding retracted/quarantined/blocked/
// disallowed-sensitivity chunks, then scores and sorts the survivors
// (spec §4.G steps 1-3). The caller truncates to retrieved_chunks_max; this
// function returns up to CandidatePoolMax candidates so a hybrid caller can
// still re-rank the full pool via Reciprocal Rank Fusion.
func SearchChunksLexical(ctx context.Context, db *sql.DB, p SearchParams) ([]ScoredChunk, error) {
	if p.TenantID == "" {
		return nil, models.NewInvalidInput("tenant_id is required")
	}
	if p.QueryText == "" {
		return nil, models.NewInvalidInput("query_text is required")
	}
	poolMax := p.CandidatePoolMax
	if poolMax <= 0 {
		poolMax = 2000
	}
	halfLife := p.HalfLife
	if halfLife <= 0 {
		halfLife = 72 * time.Hour
	}
	alpha, beta, gamma := p.Alpha, p.Beta, p.Gamma
	if alpha == 0 && beta == 0 && gamma == 0 {
		alpha, beta, gamma = 0.6, 0.3, 0.1
	}

	query := `
		SELECT ec.id, ec.tenant_id, ec.source_event_id, ec.created_at, ec.kind, ec.channel,
		       ec.sensitivity, ec.tags, ec.token_estimate, ec.importance, ec.text, ec.embedding,
		       ec.scope, ec.subject_type, ec.subject_id, ec.project_id, ec.is_retracted,
		       ec.is_quarantined, ec.blocked_channels, ec.edits_applied_count, f.rank
		FROM chunks_fts f
		JOIN chunks c ON c.rowid = f.rowid
		JOIN effective_chunks ec ON ec.id = c.id
		WHERE ec.tenant_id = ? AND chunks_fts MATCH ?
		  AND NOT ec.is_retracted AND NOT ec.is_quarantined
		  AND NOT EXISTS (SELECT 1 FROM json_each(ec.blocked_channels) je WHERE je.value = ?)
	`
	args := []any{p.TenantID, p.QueryText, string(p.CallerChannel)}

	if len(p.AllowedSensitivities) > 0 {
		placeholders := make([]string, len(p.AllowedSensitivities))
		for i, s := range p.AllowedSensitivities {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		query += ` AND ec.sensitivity IN (` + joinPlaceholders(placeholders) + `)`
	}
	if p.Scope != "" {
		query += ` AND ec.scope = ?`
		args = append(args, string(p.Scope))
	}
	if p.SubjectType != "" && p.SubjectID != "" {
		query += ` AND ec.subject_type = ? AND ec.subject_id = ?`
		args = append(args, p.SubjectType, p.SubjectID)
	}
	if p.ProjectID != "" {
		query += ` AND ec.project_id = ?`
		args = append(args, p.ProjectID)
	}
	query += ` ORDER BY f.rank LIMIT ?`
	args = append(args, poolMax)

	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var out []ScoredChunk
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		rank := 0
		for rows.Next() {
			var bm25Rank float64
			ec, err := scanEffectiveChunkWithRank(rows, &bm25Rank)
			if err != nil {
				return err
			}
			rank++

			similarity := bm25ToSimilarity(bm25Rank)
			recency := recencyDecay(now.Sub(ec.CreatedAt), halfLife)
			score := alpha*similarity + beta*recency + gamma*ec.Importance

			out = append(out, ScoredChunk{
				Chunk:      ec,
				Similarity: similarity,
				Score:      score,
				FTSRank:    rank,
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks lexical: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// bm25ToSimilarity converts an fts5 bm25() rank (more negative is a better
// match) into a [0,1]-ish similarity score.
func bm25ToSimilarity(bm25Rank float64) float64 {
	return 1.0 / (1.0 + math.Max(0, -bm25Rank))
}

// recencyDecay is an exponential decay with the given half-life.
func recencyDecay(age time.Duration, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1.0
	}
	lambda := math.Ln2 / halfLife.Seconds()
	return math.Exp(-lambda * age.Seconds())
}

func scanEffectiveChunkWithRank(row rowScanner, bm25Rank *float64) (models.EffectiveChunk, error) {
	var (
		ec                            models.EffectiveChunk
		kind, channel, sensitivity    string
		scope                         string
		tagsJSON, blockedChannelsJSON string
		createdAt                    string
		embeddingBlob                []byte
	)
	if err := row.Scan(
		&ec.ID, &ec.TenantID, &ec.SourceEventID, &createdAt, &kind, &channel, &sensitivity,
		&tagsJSON, &ec.TokenEstimate, &ec.Importance, &ec.Text, &embeddingBlob, &scope,
		&ec.SubjectType, &ec.SubjectID, &ec.ProjectID, &ec.IsRetracted, &ec.IsQuarantined,
		&blockedChannelsJSON, &ec.EditsAppliedCount, bm25Rank,
	); err != nil {
		return models.EffectiveChunk{}, err
	}

	ec.Kind = models.EventKind(kind)
	ec.Channel = models.Channel(channel)
	ec.Sensitivity = models.Sensitivity(sensitivity)
	ec.Scope = models.Scope(scope)

	if err := json.Unmarshal([]byte(tagsJSON), &ec.Tags); err != nil {
		return models.EffectiveChunk{}, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(blockedChannelsJSON), &ec.BlockedChannels); err != nil {
		return models.EffectiveChunk{}, fmt.Errorf("unmarshal blocked_channels: %w", err)
	}
	if len(embeddingBlob) > 0 {
		ec.Embedding = decodeEmbedding(embeddingBlob)
	}

	ts, err := parseTime(createdAt)
	if err != nil {
		return models.EffectiveChunk{}, fmt.Errorf("parse created_at: %w", err)
	}
	ec.CreatedAt = ts

	return ec, nil
}
