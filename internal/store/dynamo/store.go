package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"meetsync/internal/availability"
	"meetsync/internal/aws"
	"meetsync/internal/store"
)

// item is the table layout; email is the partition key.
type item struct {
	Email          string           `dynamodbav:"email"`
	Availabilities map[string][]int `dynamodbav:"availabilities"`
	Preferences    string           `dynamodbav:"preferences"`
	CreatedAt      time.Time        `dynamodbav:"created_at"`
}

// Store keeps availability records in a DynamoDB table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func New(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.DescribeTable(ctx, &dyn.DescribeTableInput{TableName: &s.tableName}); err != nil {
		return fmt.Errorf("%w: describe table: %v", store.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, email string) (availability.Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            key(email),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return availability.Record{}, fmt.Errorf("%w: get item: %v", store.ErrStoreUnavailable, err)
	}
	if len(out.Item) == 0 {
		return availability.Record{}, store.ErrNotFound
	}
	return decode(out.Item)
}

// Create writes the record only if no item with the same email exists.
func (s *Store) Create(ctx context.Context, rec availability.Record) (availability.Record, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.nowFunc().UTC()
	}
	av, err := attributevalue.MarshalMap(toItem(rec))
	if err != nil {
		return availability.Record{}, fmt.Errorf("marshal item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: awsString("attribute_not_exists(email)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return availability.Record{}, store.ErrAlreadyExists
		}
		return availability.Record{}, fmt.Errorf("%w: put item: %v", store.ErrStoreUnavailable, err)
	}
	return rec, nil
}

// Update sets availabilities and preferences on an existing item and returns
// the stored record, created_at included.
func (s *Store) Update(ctx context.Context, rec availability.Record) (availability.Record, error) {
	days, err := attributevalue.Marshal(rec.Availabilities.Raw())
	if err != nil {
		return availability.Record{}, fmt.Errorf("marshal availabilities: %w", err)
	}
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 key(rec.Email),
		UpdateExpression:    awsString("SET availabilities = :a, preferences = :p"),
		ConditionExpression: awsString("attribute_exists(email)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":a": days,
			":p": &types.AttributeValueMemberS{Value: string(rec.Preferences)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return availability.Record{}, store.ErrNotFound
		}
		return availability.Record{}, fmt.Errorf("%w: update item: %v", store.ErrStoreUnavailable, err)
	}
	return decode(out.Attributes)
}

func (s *Store) Delete(ctx context.Context, email string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 key(email),
		ConditionExpression: awsString("attribute_exists(email)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return store.ErrNotFound
		}
		return fmt.Errorf("%w: delete item: %v", store.ErrStoreUnavailable, err)
	}
	return nil
}

func key(email string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"email": &types.AttributeValueMemberS{Value: email},
	}
}

func toItem(rec availability.Record) item {
	return item{
		Email:          rec.Email,
		Availabilities: rec.Availabilities.Raw(),
		Preferences:    string(rec.Preferences),
		CreatedAt:      rec.CreatedAt,
	}
}

func decode(av map[string]types.AttributeValue) (availability.Record, error) {
	var it item
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return availability.Record{}, fmt.Errorf("unmarshal item: %w", err)
	}
	sched, err := availability.NormalizeSchedule(it.Availabilities)
	if err != nil {
		return availability.Record{}, fmt.Errorf("stored availabilities: %w", err)
	}
	return availability.Record{
		Email:          it.Email,
		Availabilities: sched,
		Preferences:    availability.Preference(it.Preferences),
		CreatedAt:      it.CreatedAt,
	}, nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
