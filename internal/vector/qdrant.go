package vector

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/qdrant/go-client/qdrant"

	"github.com/hyperjump/strata/internal/chunkid"
	"github.com/hyperjump/strata/internal/models"
)

const (
	payloadContent  = "content"
	payloadChunkID  = "chunk_id"
	payloadMetadata = "metadata"
)

// QdrantConfig configures a QdrantStore.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int
}

// QdrantStore stores records as points in a cosine-distance Qdrant collection.
// Point IDs are UUIDs derived from record IDs; the record ID travels in the payload.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore connects over gRPC and creates the collection when it does not exist.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	s := &QdrantStore{client: client, collection: cfg.Collection}
	if err := s.ensureCollection(ctx, cfg.Dimensions); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dimensions int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert writes the batch and waits until it is applied.
func (s *QdrantStore) Upsert(ctx context.Context, records []*models.StoredRecord) error {
	if len(records) == 0 {
		return nil
	}
	points, err := toPoints(records)
	if err != nil {
		return models.NewError(models.KindStore, "upsert", err)
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return models.NewError(models.KindStore, "upsert", fmt.Errorf("upserting points to collection %s: %w", s.collection, err))
	}
	return nil
}

func toPoints(records []*models.StoredRecord) ([]*qdrant.PointStruct, error) {
	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		meta := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		payload, err := qdrant.TryValueMap(map[string]any{
			payloadContent:  r.Content,
			payloadChunkID:  r.ID,
			payloadMetadata: meta,
		})
		if err != nil {
			return nil, fmt.Errorf("record %s payload: %w", r.ID, err)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunkid.UUID(r.ID)),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: payload,
		}
	}
	return points, nil
}

// Search queries the collection with a server-side score threshold.
func (s *QdrantStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]*models.Match, error) {
	res, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(serverThreshold(threshold)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, models.NewError(models.KindStore, "search", fmt.Errorf("searching collection %s: %w", s.collection, err))
	}
	matches := make([]*models.Match, 0, len(res))
	for _, point := range res {
		matches = append(matches, &models.Match{Record: fromPayload(point), Similarity: float64(point.GetScore())})
	}
	return rank(matches, threshold, limit), nil
}

// serverThreshold lowers threshold by one float32 step so a score equal to it
// survives the server's cut; rank applies the inclusive comparison.
func serverThreshold(threshold float64) float32 {
	return math.Nextafter32(float32(threshold), float32(math.Inf(-1)))
}

func fromPayload(point *qdrant.ScoredPoint) *models.StoredRecord {
	payload := point.GetPayload()
	rec := &models.StoredRecord{
		ID:       payload[payloadChunkID].GetStringValue(),
		Content:  payload[payloadContent].GetStringValue(),
		Metadata: map[string]interface{}{},
	}
	if rec.ID == "" {
		rec.ID = point.GetId().GetUuid()
	}
	for k, v := range payload[payloadMetadata].GetStructValue().GetFields() {
		if sv, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
			rec.Metadata[k] = sv.StringValue
		}
	}
	return rec
}

// Close closes the gRPC connections.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
