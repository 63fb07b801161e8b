package index

import (
	"context"
	"fmt"
	"time"

	"github.com/azure/linkedin-content-bot/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultVectorIndex = "code_chunk_index"

// MongoVectorStore keeps chunks in MongoDB Atlas and ranks them with $vectorSearch.
// The Atlas index must declare chat_id and repo_url as filter fields.
type MongoVectorStore struct {
	client   *mongo.Client
	col      *mongo.Collection
	indexKey string
}

var _ VectorStore = (*MongoVectorStore)(nil)

type mongoChunk struct {
	ID        string    `bson:"_id"`
	ChatID    int64     `bson:"chat_id"`
	RepoURL   string    `bson:"repo_url"`
	FilePath  string    `bson:"file_path"`
	Language  string    `bson:"language"`
	StartLine int       `bson:"start_line"`
	EndLine   int       `bson:"end_line"`
	Content   string    `bson:"content"`
	Vector    []float32 `bson:"vector,omitempty"`
	Score     float64   `bson:"score,omitempty"`
}

// NewMongoVectorStore connects to MongoDB and uses the chunks collection of database
func NewMongoVectorStore(ctx context.Context, uri, database string) (*MongoVectorStore, error) {
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoVectorStore{
		client:   client,
		col:      client.Database(database).Collection("chunks"),
		indexKey: defaultVectorIndex,
	}, nil
}

// Close disconnects the client
func (s *MongoVectorStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func repoFilter(chatID int64, repoURL string) bson.D {
	return bson.D{{Key: "chat_id", Value: chatID}, {Key: "repo_url", Value: repoURL}}
}

// Replace swaps a repository's chunks
func (s *MongoVectorStore) Replace(ctx context.Context, chatID int64, repoURL string, chunks []models.Chunk) error {
	if _, err := s.col.DeleteMany(ctx, repoFilter(chatID, repoURL)); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]interface{}, len(chunks))
	for i, c := range chunks {
		docs[i] = mongoChunk{
			ID:        c.ID,
			ChatID:    chatID,
			RepoURL:   repoURL,
			FilePath:  c.FilePath,
			Language:  c.Language,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Content:   c.Content,
			Vector:    c.Embedding,
		}
	}
	if _, err := s.col.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

// searchPipeline builds the Atlas aggregation for a filtered vector query
func searchPipeline(indexName string, chatID int64, repoURL string, query []float32, k int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: indexName},
			{Key: "queryVector", Value: query},
			{Key: "path", Value: "vector"},
			{Key: "numCandidates", Value: k * 10},
			{Key: "limit", Value: k},
			{Key: "filter", Value: repoFilter(chatID, repoURL)},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "vector", Value: 0},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}

// Search runs $vectorSearch restricted to the repository
func (s *MongoVectorStore) Search(ctx context.Context, chatID int64, repoURL string, query []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		k = 3
	}
	cur, err := s.col.Aggregate(ctx, searchPipeline(s.indexKey, chatID, repoURL, query, k))
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoChunk
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	hits := make([]models.ScoredChunk, len(docs))
	for i, d := range docs {
		hits[i] = models.ScoredChunk{
			Chunk: models.Chunk{
				ID:        d.ID,
				ChatID:    d.ChatID,
				RepoURL:   d.RepoURL,
				FilePath:  d.FilePath,
				Language:  d.Language,
				StartLine: d.StartLine,
				EndLine:   d.EndLine,
				Content:   d.Content,
			},
			Score: d.Score,
		}
	}
	return topK(hits, k), nil
}

// Count returns the number of chunks stored for a repository
func (s *MongoVectorStore) Count(ctx context.Context, chatID int64, repoURL string) (int, error) {
	n, err := s.col.CountDocuments(ctx, repoFilter(chatID, repoURL))
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return int(n), nil
}

// Delete drops all chunks of a repository
func (s *MongoVectorStore) Delete(ctx context.Context, chatID int64, repoURL string) error {
	if _, err := s.col.DeleteMany(ctx, repoFilter(chatID, repoURL)); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
