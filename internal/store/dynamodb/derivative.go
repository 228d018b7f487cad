package dynamodb

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// PutDerivative stores a derivative document. Content is immutable after
// creation, so an unconditional put is sufficient.
func (s *DynamoStore) PutDerivative(ctx context.Context, d types.Derivative) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":     &ddbtypes.AttributeValueMemberS{Value: derivativePK(d.ID)},
			"SK":     &ddbtypes.AttributeValueMemberS{Value: skDerivative},
			"data":   &ddbtypes.AttributeValueMemberS{Value: string(data)},
			"GSI1PK": &ddbtypes.AttributeValueMemberS{Value: derivTypeGSIPK(string(d.Type))},
			"GSI1SK": &ddbtypes.AttributeValueMemberS{Value: createdSK(d.CreatedAt, d.ID)},
		},
	})
	return err
}

// GetDerivative retrieves a derivative by ID.
func (s *DynamoStore) GetDerivative(ctx context.Context, id string) (*types.Derivative, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: derivativePK(id)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skDerivative},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, store.ErrNotFound
	}
	return unmarshalDerivative(out.Item)
}

// SetMetaParent attaches the monthly back-link to a daily derivative.
func (s *DynamoStore) SetMetaParent(ctx context.Context, derivativeID, metaParentID string) error {
	d, err := s.GetDerivative(ctx, derivativeID)
	if err != nil {
		return err
	}
	d.MetaParentID = metaParentID
	return s.PutDerivative(ctx, *d)
}

// ListDerivativesByType queries the type GSI, newest first.
func (s *DynamoStore) ListDerivativesByType(ctx context.Context, t types.DerivativeType, limit int) ([]types.Derivative, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: derivTypeGSIPK(string(t))},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, err
	}

	derivatives := make([]types.Derivative, 0, len(out.Items))
	for _, item := range out.Items {
		d, err := unmarshalDerivative(item)
		if err != nil {
			return nil, err
		}
		derivatives = append(derivatives, *d)
	}
	return derivatives, nil
}

func unmarshalDerivative(item map[string]ddbtypes.AttributeValue) (*types.Derivative, error) {
	data, err := attributeStr(item, "data")
	if err != nil {
		return nil, err
	}
	var d types.Derivative
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, err
	}
	return &d, nil
}
