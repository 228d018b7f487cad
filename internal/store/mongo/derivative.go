package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// PutDerivative upserts a derivative document by ID.
func (s *MongoStore) PutDerivative(ctx context.Context, d types.Derivative) error {
	_, err := s.derivatives.ReplaceOne(ctx,
		bson.M{"_id": d.ID},
		d,
		options.Replace().SetUpsert(true),
	)
	return err
}

// GetDerivative retrieves a derivative by ID.
func (s *MongoStore) GetDerivative(ctx context.Context, id string) (*types.Derivative, error) {
	var d types.Derivative
	err := s.derivatives.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// SetMetaParent attaches the monthly back-link without touching content.
func (s *MongoStore) SetMetaParent(ctx context.Context, derivativeID, metaParentID string) error {
	res, err := s.derivatives.UpdateByID(ctx, derivativeID,
		bson.M{"$set": bson.M{"metaParentId": metaParentID}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListDerivativesByType returns derivatives of a type, newest first.
func (s *MongoStore) ListDerivativesByType(ctx context.Context, t types.DerivativeType, limit int) ([]types.Derivative, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.derivatives.Find(ctx, bson.M{"type": t}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []types.Derivative
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
