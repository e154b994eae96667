package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/store"
	"github.com/agentmemory/memoryd/pkg/memory"
)

// chunkCacheTTL bounds how long a direct GetChunk result may be served
// stale after an approved edit that didn't route through InvalidateChunk
// (e.g. one applied directly in the store during a test or migration).
const chunkCacheTTL = 30 * time.Second

// chunkCacheMaxPerTenant caps the per-tenant entry count of the effective-
// chunk read cache, so a tenant with a hot get_chunk loop can't grow the
// cache unbounded.
const chunkCacheMaxPerTenant = 4096

// Resolver exposes the effective view of chunks — the composition of a
// chunk with every approved edit applied to it — to callers outside the
// storage layer (spec §4.D). The heavy lifting (latest-amend-wins,
// signed-delta attenuation, retract/quarantine/block) lives in the
// effective_chunks view itself; this wraps it with the direct-get vs.
// auto-retrieval visibility distinction the spec draws for quarantine,
// plus a short-TTL read cache over direct GetChunk lookups.
type Resolver struct {
	db     *sql.DB
	policy *Policy
	cache  memory.Store
}

// NewResolver builds a Resolver.
func NewResolver(db *sql.DB, policy *Policy) *Resolver {
	return &Resolver{db: db, policy: policy, cache: memory.NewLRU(chunkCacheMaxPerTenant)}
}

// GetChunk fetches a single chunk's effective view by id, for direct
// lookups (e.g. a get_chunk tool call). Quarantined chunks ARE visible
// here — quarantine only excludes a chunk from auto-retrieval (spec
// §4.D: "quarantine... visible on direct get"). Results are cached for
// chunkCacheTTL, scoped per tenant, and invalidated eagerly by
// InvalidateChunk whenever Surgery approves an edit against a chunk.
func (r *Resolver) GetChunk(ctx context.Context, tenantID, chunkID string) (models.EffectiveChunk, error) {
	if entry, ok := r.cache.Get(tenantID, "", chunkID); ok {
		var ec models.EffectiveChunk
		if err := json.Unmarshal([]byte(entry.Value), &ec); err == nil {
			return ec, nil
		}
	}
	ec, err := store.GetEffectiveChunk(ctx, r.db, tenantID, chunkID)
	if err != nil {
		return models.EffectiveChunk{}, err
	}
	if encoded, err := json.Marshal(ec); err == nil {
		_ = r.cache.Set(tenantID, "", chunkID, string(encoded), memory.WithTTL(chunkCacheTTL))
	}
	return ec, nil
}

// InvalidateChunk evicts a chunk's cached effective view, called by
// Surgery right after an edit targeting it is approved.
func (r *Resolver) InvalidateChunk(tenantID, chunkID string) {
	r.cache.Delete(tenantID, "", chunkID)
}

// GetChunks batch-fetches effective views, preserving none of the
// caller's ordering guarantees (the store layer returns whatever order
// the underlying query yields).
func (r *Resolver) GetChunks(ctx context.Context, tenantID string, chunkIDs []string) ([]models.EffectiveChunk, error) {
	return store.GetEffectiveChunks(ctx, r.db, tenantID, chunkIDs)
}

// VisibleOnChannel reports whether an effective chunk may be surfaced to
// a caller reading on channel: retracted chunks are never visible,
// quarantined chunks are excluded from this auto-retrieval path (callers
// needing direct-get semantics should use GetChunk instead), and a
// channel block on the chunk or a sensitivity the channel doesn't allow
// both hide it.
func (r *Resolver) VisibleOnChannel(ec models.EffectiveChunk, channel models.Channel) bool {
	if ec.IsRetracted || ec.IsQuarantined {
		return false
	}
	for _, blocked := range ec.BlockedChannels {
		if models.Channel(blocked) == channel {
			return false
		}
	}
	return r.policy.ChannelAllows(channel, ec.Sensitivity)
}
