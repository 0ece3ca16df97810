package vectorstore

import (
	"context"
	"fmt"

	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	payloadFileName  = "file_name"
	payloadFilePath  = "file_path"
	payloadPageLabel = "page_label"
	payloadText      = "text"

	upsertBatchSize = 100
)

// QdrantStore stores points in a Qdrant collection over gRPC.
type QdrantStore struct {
	conn        *grpc.ClientConn
	collections qdrantclient.CollectionsClient
	points      qdrantclient.PointsClient
	collection  string
	vectorSize  int
}

func NewQdrantStore(addr, collection string, vectorSize int) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect qdrant failed: %w", err)
	}
	return &QdrantStore{
		conn:        conn,
		collections: qdrantclient.NewCollectionsClient(conn),
		points:      qdrantclient.NewPointsClient(conn),
		collection:  collection,
		vectorSize:  vectorSize,
	}, nil
}

func (s *QdrantStore) Exists(ctx context.Context) (bool, error) {
	resp, err := s.collections.List(ctx, &qdrantclient.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("list qdrant collections failed: %w", err)
	}
	for _, col := range resp.GetCollections() {
		if col.GetName() == s.collection {
			return true, nil
		}
	}
	return false, nil
}

func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.collections.Create(ctx, &qdrantclient.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrantclient.VectorsConfig{
			Config: &qdrantclient.VectorsConfig_Params{
				Params: &qdrantclient.VectorParams{
					Size:     uint64(s.vectorSize),
					Distance: qdrantclient.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create qdrant collection failed: %w", err)
	}
	return nil
}

func (s *QdrantStore) Recreate(ctx context.Context) error {
	exists, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		if _, err := s.collections.Delete(ctx, &qdrantclient.DeleteCollection{CollectionName: s.collection}); err != nil {
			return fmt.Errorf("delete qdrant collection failed: %w", err)
		}
	}
	return s.EnsureCollection(ctx)
}

func (s *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	wait := true
	for start := 0; start < len(records); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(records))

		points := make([]*qdrantclient.PointStruct, 0, end-start)
		for _, rec := range records[start:end] {
			points = append(points, &qdrantclient.PointStruct{
				Id: &qdrantclient.PointId{
					PointIdOptions: &qdrantclient.PointId_Uuid{Uuid: rec.ID},
				},
				Vectors: &qdrantclient.Vectors{
					VectorsOptions: &qdrantclient.Vectors_Vector{
						Vector: &qdrantclient.Vector{Data: rec.Vector},
					},
				},
				Payload: map[string]*qdrantclient.Value{
					payloadFileName:  stringValue(rec.FileName),
					payloadFilePath:  stringValue(rec.FilePath),
					payloadPageLabel: stringValue(rec.PageLabel),
					payloadText:      stringValue(rec.Text),
				},
			})
		}

		_, err := s.points.Upsert(ctx, &qdrantclient.UpsertPoints{
			CollectionName: s.collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("upsert qdrant points failed: %w", err)
		}
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}
	resp, err := s.points.Search(ctx, &qdrantclient.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &qdrantclient.WithPayloadSelector{
			SelectorOptions: &qdrantclient.WithPayloadSelector_Include{
				Include: &qdrantclient.PayloadIncludeSelector{
					Fields: []string{payloadFileName, payloadFilePath, payloadPageLabel, payloadText},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search qdrant failed: %w", err)
	}

	matches := make([]Match, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		payload := point.GetPayload()
		matches = append(matches, Match{
			ID:        point.GetId().GetUuid(),
			Score:     point.GetScore(),
			FileName:  payload[payloadFileName].GetStringValue(),
			FilePath:  payload[payloadFilePath].GetStringValue(),
			PageLabel: payload[payloadPageLabel].GetStringValue(),
			Text:      payload[payloadText].GetStringValue(),
		})
	}
	return matches, nil
}

func (s *QdrantStore) DeleteByFile(ctx context.Context, filePath string) error {
	wait := true
	_, err := s.points.Delete(ctx, &qdrantclient.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &qdrantclient.PointsSelector{
			PointsSelectorOneOf: &qdrantclient.PointsSelector_Filter{
				Filter: &qdrantclient.Filter{
					Must: []*qdrantclient.Condition{{
						ConditionOneOf: &qdrantclient.Condition_Field{
							Field: &qdrantclient.FieldCondition{
								Key: payloadFilePath,
								Match: &qdrantclient.Match{
									MatchValue: &qdrantclient.Match_Keyword{Keyword: filePath},
								},
							},
						},
					}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete qdrant points failed: %w", err)
	}
	return nil
}

func (s *QdrantStore) Ping(ctx context.Context) error {
	_, err := s.Exists(ctx)
	return err
}

func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

func stringValue(v string) *qdrantclient.Value {
	return &qdrantclient.Value{Kind: &qdrantclient.Value_StringValue{StringValue: v}}
}
