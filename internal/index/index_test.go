package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode"

	"github.com/azure/linkedin-content-bot/internal/engagement"
	"github.com/azure/linkedin-content-bot/internal/ingest"
	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

const testRepo = "https://github.com/acme/bot"

// bagEmbedder gives every distinct word its own dimension
type bagEmbedder struct {
	vocab map[string]int
	calls int
	fail  error
}

const bagDims = 512

func (b *bagEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	b.calls++
	if b.fail != nil {
		return nil, b.fail
	}
	if b.vocab == nil {
		b.vocab = make(map[string]int)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, bagDims)
		words := strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			id, ok := b.vocab[w]
			if !ok {
				id = len(b.vocab) % bagDims
				b.vocab[w] = id
			}
			v[id]++
		}
		out[i] = v
	}
	return out, nil
}

type dirSyncer struct {
	dir     string
	head    string
	removed bool
}

func (d *dirSyncer) Sync(_ context.Context, _ int64, url string, _ bool) (*ingest.Snapshot, error) {
	return &ingest.Snapshot{URL: url, Dir: d.dir, Head: d.head}, nil
}

func (d *dirSyncer) Remove(int64, string) error {
	d.removed = true
	return nil
}

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestIndex(t *testing.T) (*Indexer, *Retriever, *dirSyncer, *bagEmbedder, *engagement.Store) {
	t.Helper()
	store, err := engagement.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	dir := t.TempDir()
	write(t, dir, "README.md", "# Bot\n\nA bot that posts about code.\n")
	write(t, dir, "auth/login.go", "package auth\n\nfunc Login(user, password string) error {\n\treturn checkOAuth(user, password)\n}\n")
	write(t, dir, "api/server.go", "package api\n\nfunc Serve() {\n\tregisterEndpoints()\n}\n")

	syncer := &dirSyncer{dir: dir, head: "abc1234567"}
	emb := &bagEmbedder{}
	vs := NewSQLiteVectorStore(store.DB())
	return NewIndexer(syncer, NewChunker(0, 0), emb, vs, store), NewRetriever(emb, vs), syncer, emb, store
}

func TestChunker_SplitsOnBoundaries(t *testing.T) {
	c := NewChunker(60, 10)
	text := "package x\n\nfunc A() {\n\treturn\n}\n\nfunc B() {\n\treturn\n}\n\nfunc C() {\n\treturn\n}\n"

	pieces := c.Split(text, "go")
	require.NotEmpty(t, pieces)
	for _, p := range pieces {
		assert.LessOrEqual(t, len(p.Text), 60+10)
		assert.GreaterOrEqual(t, p.EndLine, p.StartLine)
	}
	assert.Equal(t, 1, pieces[0].StartLine)
	assert.Nil(t, c.Split("  \n\t", "go"))
}

func TestChunker_Defaults(t *testing.T) {
	c := NewChunker(0, -1)
	assert.Equal(t, DefaultChunkSize, c.Size)
	assert.Equal(t, DefaultChunkOverlap, c.Overlap)

	small := NewChunker(100, 500)
	assert.Less(t, small.Overlap, small.Size)
}

func TestHeader(t *testing.T) {
	assert.Equal(t, "File: a/b.go (go)\nLines: 3-9\n---\n", Header("a/b.go", "go", 3, 9))
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 3e-7}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
	assert.Empty(t, decodeVector(nil))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine(nil, []float32{1}))
}

func TestIndexer_IndexAndReuse(t *testing.T) {
	ctx := context.Background()
	ix, _, syncer, emb, store := newTestIndex(t)

	res, err := ix.Index(ctx, 7, testRepo, false)
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.Equal(t, "bot", res.Record.Name)
	assert.Equal(t, "abc1234567", res.Record.LastIndexedCommit)
	assert.Equal(t, 3, res.Record.ChunkCount)

	rec, err := store.GetRepository(ctx, 7, testRepo)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ChunkCount)

	// unchanged HEAD skips embedding
	calls := emb.calls
	res, err = ix.Index(ctx, 7, testRepo, false)
	require.NoError(t, err)
	assert.True(t, res.Reused)
	assert.Equal(t, calls, emb.calls)

	// moved HEAD re-embeds
	syncer.head = "def7654321"
	res, err = ix.Index(ctx, 7, testRepo, false)
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.Greater(t, emb.calls, calls)
}

func TestIndexer_ChunkIDsAreStable(t *testing.T) {
	ix, _, _, _, _ := newTestIndex(t)
	a, err := ix.buildChunks(1, testRepo, ix.loader.(*dirSyncer).dir)
	require.NoError(t, err)
	b, err := ix.buildChunks(1, testRepo, ix.loader.(*dirSyncer).dir)
	require.NoError(t, err)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.True(t, strings.HasPrefix(a[i].Content, "File: "))
	}

	other, err := ix.buildChunks(2, testRepo, ix.loader.(*dirSyncer).dir)
	require.NoError(t, err)
	assert.NotEqual(t, a[0].ID, other[0].ID)
}

func TestIndexer_NoIndexableContent(t *testing.T) {
	ctx := context.Background()
	ix, _, syncer, _, store := newTestIndex(t)
	syncer.dir = t.TempDir()
	write(t, syncer.dir, "image.png", "not code")

	_, err := ix.Index(ctx, 7, testRepo, true)
	require.ErrorIs(t, err, ErrNoIndexableContent)

	rec, err := store.GetRepository(ctx, 7, testRepo)
	require.NoError(t, err)
	assert.Zero(t, rec.ChunkCount)
}

func TestIndexer_EmbedFailure(t *testing.T) {
	ix, _, _, emb, store := newTestIndex(t)
	emb.fail = errors.New("rate limited")

	_, err := ix.Index(context.Background(), 7, testRepo, false)
	require.Error(t, err)

	_, err = store.GetRepository(context.Background(), 7, testRepo)
	assert.ErrorIs(t, err, engagement.ErrNotFound)
}

func TestIndexer_Remove(t *testing.T) {
	ctx := context.Background()
	ix, _, syncer, _, store := newTestIndex(t)
	_, err := ix.Index(ctx, 7, testRepo, false)
	require.NoError(t, err)

	require.NoError(t, ix.Remove(ctx, 7, testRepo))
	assert.True(t, syncer.removed)

	n, err := ix.store.Count(ctx, 7, testRepo)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = store.GetRepository(ctx, 7, testRepo)
	assert.ErrorIs(t, err, engagement.ErrNotFound)
}

func TestRetriever_ContextForPost(t *testing.T) {
	ctx := context.Background()
	ix, r, _, _, _ := newTestIndex(t)
	_, err := ix.Index(ctx, 7, testRepo, false)
	require.NoError(t, err)

	pc, err := r.ContextForPost(ctx, 7, testRepo, "login password oauth")
	require.NoError(t, err)
	require.NotEmpty(t, pc.Main)
	assert.Equal(t, "auth/login.go", pc.Main[0].FilePath)
	assert.LessOrEqual(t, len(pc.Snippets), maxSnippets)
	for _, s := range pc.Snippets {
		assert.NotEqual(t, "markdown", s.Language)
	}

	// each file appears once across the groups
	files := pc.Files()
	assert.Len(t, files, len(pc.Main)+len(pc.Supporting))
	assert.Contains(t, pc.Text(), "func Login")
}

func TestRetriever_IsolatedPerUser(t *testing.T) {
	ctx := context.Background()
	ix, r, _, _, _ := newTestIndex(t)
	_, err := ix.Index(ctx, 7, testRepo, false)
	require.NoError(t, err)

	pc, err := r.ContextForPost(ctx, 8, testRepo, "")
	require.NoError(t, err)
	assert.Empty(t, pc.Main)
	assert.Empty(t, pc.Supporting)
}

func TestRetriever_MatchTrends(t *testing.T) {
	ctx := context.Background()
	ix, r, _, _, _ := newTestIndex(t)
	_, err := ix.Index(ctx, 7, testRepo, false)
	require.NoError(t, err)

	hits, err := r.MatchTrends(ctx, 7, testRepo, []string{"oauth", "quantum"})
	require.NoError(t, err)
	assert.Contains(t, hits, "oauth")
	assert.GreaterOrEqual(t, hits["oauth"], TrendMatchThreshold)
	assert.NotContains(t, hits, "quantum")

	empty, err := r.MatchTrends(ctx, 7, testRepo, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTopK_Ordering(t *testing.T) {
	hits := []models.ScoredChunk{
		{Chunk: models.Chunk{FilePath: "b.go", StartLine: 1}, Score: 0.5},
		{Chunk: models.Chunk{FilePath: "a.go", StartLine: 9}, Score: 0.5},
		{Chunk: models.Chunk{FilePath: "a.go", StartLine: 1}, Score: 0.5},
		{Chunk: models.Chunk{FilePath: "z.go", StartLine: 1}, Score: 0.9},
	}
	got := topK(hits, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "z.go", got[0].FilePath)
	assert.Equal(t, "a.go", got[1].FilePath)
	assert.Equal(t, 1, got[1].StartLine)
	assert.Equal(t, 9, got[2].StartLine)
}

func TestSearchPipeline_FiltersByUserAndRepo(t *testing.T) {
	p := searchPipeline("idx", 42, testRepo, []float32{0.1, 0.2}, 3)
	require.Len(t, p, 2)

	stage := p[0][0]
	assert.Equal(t, "$vectorSearch", stage.Key)
	body := stage.Value.(bson.D).Map()
	assert.Equal(t, "idx", body["index"])
	assert.Equal(t, 3, body["limit"])
	assert.Equal(t, 30, body["numCandidates"])
	assert.Equal(t, repoFilter(42, testRepo), body["filter"])
}
