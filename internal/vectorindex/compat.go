package vectorindex

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	sqlite "modernc.org/sqlite"
	"modernc.org/sqlite/vtab"
)

// This file registers a pure-Go stand-in for sqlite-vec's vec0 virtual
// table and vector_distance_cos function against modernc.org/sqlite's
// vtab hooks. github.com/asg017/sqlite-vec-go-bindings only ships a cgo
// build (sqlite-vec-go-bindings/cgo); memoryd links modernc.org/sqlite
// (pure Go, no cgo), so it needs this table surface rather than the real
// extension. Ranking is brute-force cosine distance, not ANN — acceptable
// for the per-tenant chunk volumes this index carries (spec §9).

func init() {
	_ = vtab.RegisterModule(nil, "vec0", &chunkVecModule{})
	_ = sqlite.RegisterDeterministicScalarFunction("vector_distance_cos", 2, vectorDistanceCos)
}

type chunkVecModule struct{}

var (
	tablesMu sync.RWMutex
	tables   = make(map[string]*chunkVecTable)
)

type chunkVecTable struct {
	name      string
	mu        sync.RWMutex
	rows      []chunkVecRow
	nextRowID int64
}

type chunkVecRow struct {
	rowid     int64
	embedding []byte
	chunkID   string
	tenantID  string
}

func (m *chunkVecModule) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

func (m *chunkVecModule) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

func (m *chunkVecModule) connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("vec0: insufficient args")
	}
	name := args[2]
	if err := ctx.Declare("CREATE TABLE x(embedding BLOB, chunk_id TEXT, tenant_id TEXT)"); err != nil {
		return nil, err
	}

	tablesMu.Lock()
	defer tablesMu.Unlock()
	tbl, ok := tables[name]
	if !ok {
		tbl = &chunkVecTable{name: name, nextRowID: 1}
		tables[name] = tbl
	}
	return tbl, nil
}

func (t *chunkVecTable) BestIndex(info *vtab.IndexInfo) error {
	info.EstimatedRows = int64(len(t.rows))
	return nil
}

func (t *chunkVecTable) Open() (vtab.Cursor, error) {
	return &chunkVecCursor{tbl: t, idx: -1}, nil
}

func (t *chunkVecTable) Disconnect() error { return nil }
func (t *chunkVecTable) Destroy() error    { return nil }

func (t *chunkVecTable) Insert(cols []vtab.Value, rowid *int64) error {
	if len(cols) < 3 {
		return fmt.Errorf("vec0: insert expects 3 columns")
	}
	emb, err := coerceBlob(cols[0])
	if err != nil {
		return err
	}
	chunkID := toString(cols[1])
	tenantID := toString(cols[2])

	t.mu.Lock()
	defer t.mu.Unlock()
	rid := *rowid
	if rid <= 0 {
		rid = t.nextRowID
		t.nextRowID++
	}
	replaced := false
	for i := range t.rows {
		if t.rows[i].rowid == rid || (t.rows[i].chunkID == chunkID && chunkID != "") {
			t.rows[i] = chunkVecRow{rowid: rid, embedding: emb, chunkID: chunkID, tenantID: tenantID}
			replaced = true
			break
		}
	}
	if !replaced {
		t.rows = append(t.rows, chunkVecRow{rowid: rid, embedding: emb, chunkID: chunkID, tenantID: tenantID})
	}
	if rid >= t.nextRowID {
		t.nextRowID = rid + 1
	}
	*rowid = rid
	return nil
}

func (t *chunkVecTable) Update(oldRowid int64, cols []vtab.Value, newRowid *int64) error {
	if len(cols) < 3 {
		return fmt.Errorf("vec0: update expects 3 columns")
	}
	emb, err := coerceBlob(cols[0])
	if err != nil {
		return err
	}
	chunkID := toString(cols[1])
	tenantID := toString(cols[2])

	t.mu.Lock()
	defer t.mu.Unlock()
	target := oldRowid
	if newRowid != nil && *newRowid > 0 {
		target = *newRowid
	}
	for i := range t.rows {
		if t.rows[i].rowid == oldRowid {
			t.rows[i] = chunkVecRow{rowid: target, embedding: emb, chunkID: chunkID, tenantID: tenantID}
			return nil
		}
	}
	t.rows = append(t.rows, chunkVecRow{rowid: target, embedding: emb, chunkID: chunkID, tenantID: tenantID})
	if target >= t.nextRowID {
		t.nextRowID = target + 1
	}
	return nil
}

func (t *chunkVecTable) Delete(oldRowid int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rows {
		if t.rows[i].rowid == oldRowid {
			t.rows = append(t.rows[:i], t.rows[i+1:]...)
			break
		}
	}
	return nil
}

type chunkVecCursor struct {
	tbl *chunkVecTable
	idx int
}

func (c *chunkVecCursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	c.idx = -1
	return c.Next()
}

func (c *chunkVecCursor) Next() error {
	c.idx++
	return nil
}

func (c *chunkVecCursor) Eof() bool {
	c.tbl.mu.RLock()
	defer c.tbl.mu.RUnlock()
	return c.idx >= len(c.tbl.rows)
}

func (c *chunkVecCursor) Column(col int) (vtab.Value, error) {
	c.tbl.mu.RLock()
	defer c.tbl.mu.RUnlock()
	if c.idx < 0 || c.idx >= len(c.tbl.rows) {
		return nil, fmt.Errorf("vec0: cursor out of range")
	}
	row := c.tbl.rows[c.idx]
	switch col {
	case 0:
		return row.embedding, nil
	case 1:
		return row.chunkID, nil
	case 2:
		return row.tenantID, nil
	default:
		return nil, fmt.Errorf("vec0: invalid column %d", col)
	}
}

func (c *chunkVecCursor) Rowid() (int64, error) {
	c.tbl.mu.RLock()
	defer c.tbl.mu.RUnlock()
	if c.idx < 0 || c.idx >= len(c.tbl.rows) {
		return 0, fmt.Errorf("vec0: cursor out of range")
	}
	return c.tbl.rows[c.idx].rowid, nil
}

func (c *chunkVecCursor) Close() error { return nil }

func vectorDistanceCos(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vector_distance_cos expects 2 arguments")
	}
	a, err := decodeFloat32Arg(args[0])
	if err != nil {
		return nil, err
	}
	b, err := decodeFloat32Arg(args[1])
	if err != nil {
		return nil, err
	}
	if len(a) == 0 || len(b) == 0 {
		return float64(1), nil
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("vector_distance_cos: dimension mismatch %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return float64(1), nil
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return float64(1 - cos), nil
}

func decodeFloat32Arg(v driver.Value) ([]float32, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []byte:
		return decodeEmbedding(x), nil
	case string:
		return decodeEmbedding([]byte(x)), nil
	default:
		return nil, fmt.Errorf("vector_distance_cos: unsupported type %T", v)
	}
}

func coerceBlob(v vtab.Value) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		cp := make([]byte, len(x))
		copy(cp, x)
		return cp, nil
	case string:
		return []byte(x), nil
	default:
		return nil, fmt.Errorf("vec0: unsupported embedding type %T", v)
	}
}

func toString(v vtab.Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// encodeEmbedding/decodeEmbedding mirror store.encodeEmbedding's
// little-endian float32 blob layout so chunk embeddings round-trip
// identically whether read via the chunks table or this index.
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	n := len(buf) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}
