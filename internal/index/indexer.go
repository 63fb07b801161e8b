package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/azure/linkedin-content-bot/internal/ingest"
	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// maxChunksPerRepo bounds embedding cost for very large repositories
const maxChunksPerRepo = 1500

// ErrNoIndexableContent is returned when a repository yields no chunks
var ErrNoIndexableContent = errors.New("repository has no indexable content")

// RepositoryRecorder persists repository indexing state
type RepositoryRecorder interface {
	UpsertRepository(ctx context.Context, r *models.RepositoryRecord) error
	GetRepository(ctx context.Context, chatID int64, url string) (*models.RepositoryRecord, error)
	DeleteRepository(ctx context.Context, chatID int64, url string) error
}

// Syncer produces a local checkout of a repository
type Syncer interface {
	Sync(ctx context.Context, chatID int64, url string, force bool) (*ingest.Snapshot, error)
	Remove(chatID int64, url string) error
}

// Indexer builds the context index of a repository
type Indexer struct {
	loader   Syncer
	chunker  Chunker
	embedder Embedder
	store    VectorStore
	repos    RepositoryRecorder
	now      func() time.Time
}

// NewIndexer wires an indexer
func NewIndexer(loader Syncer, chunker Chunker, embedder Embedder, store VectorStore, repos RepositoryRecorder) *Indexer {
	return &Indexer{
		loader:   loader,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		repos:    repos,
		now:      time.Now,
	}
}

// Result is the outcome of indexing one repository
type Result struct {
	Record   *models.RepositoryRecord
	Snapshot *ingest.Snapshot
	Reused   bool // index was already at HEAD
}

// Index syncs the checkout and re-embeds it when HEAD moved or force is set
func (ix *Indexer) Index(ctx context.Context, chatID int64, url string, force bool) (*Result, error) {
	log := logrus.WithFields(logrus.Fields{"chat_id": chatID, "repo": url})

	snap, err := ix.loader.Sync(ctx, chatID, url, force)
	if err != nil {
		return nil, err
	}

	if !force {
		if rec, err := ix.repos.GetRepository(ctx, chatID, url); err == nil &&
			rec.LastIndexedCommit == snap.Head && rec.ChunkCount > 0 {
			log.Debug("Index already at HEAD")
			return &Result{Record: rec, Snapshot: snap, Reused: true}, nil
		}
	}

	chunks, err := ix.buildChunks(chatID, url, snap.Dir)
	if err != nil {
		return nil, err
	}

	record := &models.RepositoryRecord{
		ChatID:            chatID,
		URL:               url,
		Name:              models.RepoName(url),
		LastIndexedCommit: snap.Head,
		ChunkCount:        len(chunks),
		IndexedAt:         ix.now().UTC(),
	}

	if len(chunks) == 0 {
		if err := ix.store.Delete(ctx, chatID, url); err != nil {
			return nil, err
		}
		if err := ix.repos.UpsertRepository(ctx, record); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", url, ErrNoIndexableContent)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s: %w", url, err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	if err := ix.store.Replace(ctx, chatID, url, chunks); err != nil {
		return nil, err
	}
	if err := ix.repos.UpsertRepository(ctx, record); err != nil {
		return nil, err
	}

	log.Infof("Indexed %d chunks at %s", len(chunks), shortHash(snap.Head))
	return &Result{Record: record, Snapshot: snap}, nil
}

func (ix *Indexer) buildChunks(chatID int64, url, dir string) ([]models.Chunk, error) {
	files, err := ingest.ListFiles(dir)
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for _, f := range files {
		text, err := ingest.ReadFile(dir, f.Path)
		if err != nil {
			logrus.Debugf("Skipping %s: %v", f.Path, err)
			continue
		}
		for _, p := range ix.chunker.Split(text, f.Language) {
			if len(chunks) >= maxChunksPerRepo {
				logrus.Warnf("Chunk limit reached for %s, truncating index", url)
				return chunks, nil
			}
			key := fmt.Sprintf("%d|%s|%s|%d", chatID, url, f.Path, p.StartLine)
			chunks = append(chunks, models.Chunk{
				ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String(),
				ChatID:    chatID,
				RepoURL:   url,
				FilePath:  f.Path,
				Language:  f.Language,
				StartLine: p.StartLine,
				EndLine:   p.EndLine,
				Content:   Header(f.Path, f.Language, p.StartLine, p.EndLine) + p.Text,
			})
		}
	}
	return chunks, nil
}

// Remove drops the index, the record and the checkout of a repository
func (ix *Indexer) Remove(ctx context.Context, chatID int64, url string) error {
	if err := ix.store.Delete(ctx, chatID, url); err != nil {
		return err
	}
	if err := ix.repos.DeleteRepository(ctx, chatID, url); err != nil {
		return err
	}
	return ix.loader.Remove(chatID, url)
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
