package vector

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

type QdrantStore struct {
	client     *qdrant.Client
	host       string
	port       int
	waitUpsert bool
}

func NewQdrantStore(host string, port int) (*QdrantStore, error) {
	c, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
		GrpcOptions: []grpc.DialOption{
			grpc.WithUserAgent("vectra"),
		},
	})
	if err != nil {
		return nil, err
	}

	s := &QdrantStore{
		client:     c,
		host:       host,
		port:       port,
		waitUpsert: true,
	}
	return s, nil
}

func NewQdrantStoreDefault() (*QdrantStore, error) {
	return NewQdrantStore("localhost", 6334)
}

func (s QdrantStore) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	return s.client.CollectionExists(ctx, collectionName)
}

func (s QdrantStore) CreateCollection(ctx context.Context, collection Collection) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(collection.Dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	return err
}

// CreateIndex tunes the collection's HNSW graph. Qdrant builds HNSW
// natively, so any other index type is rejected.
func (s QdrantStore) CreateIndex(ctx context.Context, collectionName string, index Index) error {
	if index.Type != IndexTypeHNSW {
		return fmt.Errorf("%w: qdrant only builds '%s' indexes", ErrUnsupportedIndexType, IndexTypeHNSW)
	}

	hnswConfig := &qdrant.HnswConfigDiff{}
	if index.M > 0 {
		m := uint64(index.M)
		hnswConfig.M = &m
	}
	if index.EfConstruct > 0 {
		ef := uint64(index.EfConstruct)
		hnswConfig.EfConstruct = &ef
	}

	err := s.client.UpdateCollection(ctx, &qdrant.UpdateCollection{
		CollectionName: collectionName,
		HnswConfig:     hnswConfig,
	})
	return err
}

func (s QdrantStore) Upsert(ctx context.Context, collectionName string, points []*Point) error {
	upsertPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, point := range points {
		upsertPoints = append(upsertPoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(point.ID),
			Vectors: qdrant.NewVectors(point.Vector...),
			Payload: qdrant.NewValueMap(point.Payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName,
		Wait:           &s.waitUpsert,
		Points:         upsertPoints,
	})

	return err
}

func (s QdrantStore) Query(ctx context.Context, params *QueryParams) ([]*ScoredPoint, error) {
	queryPoints := &qdrant.QueryPoints{
		CollectionName: params.collection,
		Query:          qdrant.NewQuery(params.query...),
		WithPayload:    qdrant.NewWithPayload(params.withPayload),
		WithVectors:    qdrant.NewWithVectors(params.withVectors),
		ScoreThreshold: params.scoreThreshold,
	}

	if params.limit > 0 {
		limit := uint64(params.limit)
		queryPoints.Limit = &limit
	}

	if len(params.filters) > 0 {
		conds := make([]*qdrant.Condition, 0, len(params.filters))
		for _, filter := range params.filters {
			conds = append(conds, qdrant.NewMatch(filter.Key, filter.Value))
		}

		filter := &qdrant.Filter{
			Must: conds,
		}
		queryPoints.Filter = filter
	}

	res, err := s.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, err
	}

	scoredPoints := make([]*ScoredPoint, 0, len(res))
	for _, sp := range res {
		payload := make(map[string]string)
		for k, v := range sp.Payload {
			if textValue := v.GetStringValue(); textValue != "" {
				payload[k] = textValue
			}
		}

		point := &ScoredPoint{
			ID:      sp.Id.GetUuid(),
			Score:   sp.Score,
			Payload: payload,
		}
		if params.withVectors {
			point.Vector = sp.Vectors.GetVector().GetData()
		}

		scoredPoints = append(scoredPoints, point)
	}

	return scoredPoints, nil
}

func (s QdrantStore) Close() error {
	return s.client.Close()
}
