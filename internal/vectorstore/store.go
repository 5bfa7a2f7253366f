// Package vectorstore adapts internal/models.VectorPoint onto Qdrant,
// the external vector database spec.md §4.9 targets: collection lifecycle,
// paginated existing-ID discovery (for the Orchestrator's skip set), and
// chunked upserts that never wait for server-side indexing.
package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/ternarybob/quaero-index/internal/common"
	"github.com/ternarybob/quaero-index/internal/models"
)

// maxUpsertBatch is the vector-store payload limit on points per call
// (spec.md §4.7, §4.9): Upsert splits every call into chunks of this size.
const maxUpsertBatch = 100

// scrollPageSize is how many point IDs ExistingIDs fetches per round trip.
const scrollPageSize = 1000

// payloadRepoField is the payload field indexed for filtered scroll/search.
const payloadRepoField = "repo_name"

// Store wraps a Qdrant gRPC client bound to one collection.
type Store struct {
	client     *qdrant.Client
	collection string
	dimension  uint64
}

// Open connects to Qdrant per cfg. The collection is not created here; call
// EnsureCollection once at startup.
func Open(cfg common.VectorStoreConfig) (*Store, error) {
	host, port, useTLS, err := parseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parse url %q: %w", cfg.URL, err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connect: %w", err)
	}

	return &Store{
		client:     client,
		collection: cfg.CollectionName,
		dimension:  uint64(cfg.Dimension),
	}, nil
}

func parseURL(raw string) (host string, port int, useTLS bool, err error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, err
	}
	if parsed.Host == "" {
		// Bare "host:port" with no scheme.
		parsed, err = url.Parse("qdrant://" + raw)
		if err != nil {
			return "", 0, false, err
		}
	}
	host = parsed.Hostname()
	portStr := parsed.Port()
	if portStr == "" {
		port = 6334
	} else {
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid port %q: %w", portStr, err)
		}
	}
	return host, port, parsed.Scheme == "https", nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the collection if absent (Cosine distance, the
// configured dimension) and indexes the repo_name payload field.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("vectorstore: check collection exists: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: create collection: %w", err)
	}

	err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      payloadRepoField,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: index %s: %w", payloadRepoField, err)
	}
	return nil
}

// ExistingIDs returns every point ID currently stored, via paginated scroll
// with vectors and payload omitted, for the Orchestrator's skip set.
func (s *Store) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	var offset *qdrant.PointId

	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			Offset:         offset,
			WithVectors:    qdrant.NewWithVectors(false),
			WithPayload:    qdrant.NewWithPayload(false),
		})
		if err != nil {
			return nil, fmt.Errorf("vectorstore: scroll: %w", err)
		}
		if len(points) == 0 {
			break
		}

		for _, p := range points {
			ids[pointIDString(p.GetId())] = struct{}{}
		}

		if len(points) < scrollPageSize {
			break
		}
		offset = points[len(points)-1].GetId()
	}

	return ids, nil
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// Upsert writes points in chunks of at most maxUpsertBatch, wait=false, so
// the caller never blocks on server-side indexing (spec.md §4.6, §4.9).
func (s *Store) Upsert(ctx context.Context, points []models.VectorPoint) error {
	for start := 0; start < len(points); start += maxUpsertBatch {
		end := start + maxUpsertBatch
		if end > len(points) {
			end = len(points)
		}
		if err := s.upsertChunk(ctx, points[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertChunk(ctx context.Context, chunk []models.VectorPoint) error {
	pbPoints := make([]*qdrant.PointStruct, len(chunk))
	for i, p := range chunk {
		pbPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID.String()),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"repo_name":    p.Payload.RepoName,
				"content_hash": p.Payload.ContentHash,
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         pbPoints,
		Wait:           qdrant.PtrOf(false),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: upsert %d points: %w", len(chunk), err)
	}
	return nil
}
