// Package dynamodb stores lists in a single DynamoDB table and watches the
// table's stream for changes.
//
// Layout:
//
//	PK = USER#<ownerID>   SK = LIST#<listID>   EntityType = LIST
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"taskable/application/ports"
	"taskable/domain/core/entities"
	apperrors "taskable/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const (
	entityTypeList = "LIST"
	userPrefix     = "USER#"
	listPrefix     = "LIST#"
)

// API is the subset of the DynamoDB client used by ListStore
type API interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// listItem is the DynamoDB item for one list
type listItem struct {
	PK         string              `dynamodbav:"PK"`
	SK         string              `dynamodbav:"SK"`
	EntityType string              `dynamodbav:"EntityType"`
	ListID     string              `dynamodbav:"ListID"`
	UserID     string              `dynamodbav:"UserID"`
	Name       string              `dynamodbav:"Name"`
	Todos      []entities.TodoItem `dynamodbav:"Todos"`
	CreatedAt  string              `dynamodbav:"CreatedAt"`
	UpdatedAt  string              `dynamodbav:"UpdatedAt"`
}

func userPK(ownerID string) string { return userPrefix + ownerID }
func listSK(listID string) string  { return listPrefix + listID }

func toItem(record ports.ListRecord) listItem {
	todos := record.Todos
	if todos == nil {
		todos = []entities.TodoItem{}
	}
	return listItem{
		PK:         userPK(record.UserID),
		SK:         listSK(record.ID),
		EntityType: entityTypeList,
		ListID:     record.ID,
		UserID:     record.UserID,
		Name:       record.Name,
		Todos:      todos,
		CreatedAt:  record.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// toRecord converts a stored item. Unparseable timestamps become the zero
// time and are logged.
func (i listItem) toRecord(logger *zap.Logger) ports.ListRecord {
	listID := i.ListID
	if listID == "" {
		listID = strings.TrimPrefix(i.SK, listPrefix)
	}
	created, err := time.Parse(time.RFC3339Nano, i.CreatedAt)
	if err != nil {
		logger.Warn("Invalid list timestamp", zap.String("listID", listID), zap.String("attribute", "CreatedAt"), zap.Error(err))
	}
	updated, err := time.Parse(time.RFC3339Nano, i.UpdatedAt)
	if err != nil {
		logger.Warn("Invalid list timestamp", zap.String("listID", listID), zap.String("attribute", "UpdatedAt"), zap.Error(err))
	}
	return ports.ListRecord{
		ID:        listID,
		UserID:    i.UserID,
		Name:      i.Name,
		Todos:     i.Todos,
		CreatedAt: created,
		UpdatedAt: updated,
	}
}

// ListStore implements ports.ListStore for one owner's partition.
// Update and delete address rows by list id within that partition.
type ListStore struct {
	client    API
	tableName string
	ownerID   string
	logger    *zap.Logger
}

// NewListStore creates a store scoped to ownerID
func NewListStore(client API, tableName, ownerID string, logger *zap.Logger) *ListStore {
	return &ListStore{
		client:    client,
		tableName: tableName,
		ownerID:   ownerID,
		logger:    logger,
	}
}

// ListLists queries the owner's partition and orders by UpdatedAt, newest first
func (s *ListStore) ListLists(ctx context.Context, ownerID string) ([]ports.ListRecord, error) {
	if ownerID != s.ownerID {
		return nil, apperrors.NewUnauthorizedError("owner does not match bearer token")
	}

	keyEx := expression.Key("PK").Equal(expression.Value(userPK(ownerID))).
		And(expression.Key("SK").BeginsWith(listPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build expression").WithCause(err)
	}

	var records []ports.ListRecord
	var startKey map[string]types.AttributeValue
	for {
		result, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
			ConsistentRead:            aws.Bool(true),
		})
		if err != nil {
			return nil, apperrors.NewDatabaseError("query lists", err)
		}

		for _, raw := range result.Items {
			var item listItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				s.logger.Warn("Failed to parse list item", zap.Error(err))
				continue
			}
			records = append(records, item.toRecord(s.logger))
		}

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})

	s.logger.Debug("Fetched lists", zap.String("ownerID", ownerID), zap.Int("count", len(records)))
	return records, nil
}

// InsertList puts a new item; an existing item with the same key is an error
func (s *ListStore) InsertList(ctx context.Context, record ports.ListRecord) error {
	if record.UserID != s.ownerID {
		return apperrors.NewUnauthorizedError("owner does not match bearer token")
	}

	item, err := attributevalue.MarshalMap(toItem(record))
	if err != nil {
		return apperrors.NewInternalError("failed to marshal list").WithCause(err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()).
		Build()
	if err != nil {
		return apperrors.NewInternalError("failed to build expression").WithCause(err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return apperrors.NewValidationError(fmt.Sprintf("list %s already exists", record.ID)).
				WithCode("DUPLICATE_ID")
		}
		return apperrors.NewDatabaseError("insert list", err)
	}

	s.logger.Debug("List inserted", zap.String("listID", record.ID), zap.String("ownerID", record.UserID))
	return nil
}

// UpdateList sets the non-nil fields of update on an existing item
func (s *ListStore) UpdateList(ctx context.Context, id string, update ports.ListUpdate) error {
	updateEx := expression.Set(
		expression.Name("UpdatedAt"),
		expression.Value(update.UpdatedAt.UTC().Format(time.RFC3339Nano)),
	)
	if update.Name != nil {
		updateEx = updateEx.Set(expression.Name("Name"), expression.Value(*update.Name))
	}
	if update.Todos != nil {
		todos := *update.Todos
		if todos == nil {
			todos = []entities.TodoItem{}
		}
		updateEx = updateEx.Set(expression.Name("Todos"), expression.Value(todos))
	}

	expr, err := expression.NewBuilder().
		WithUpdate(updateEx).
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return apperrors.NewInternalError("failed to build expression").WithCause(err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return apperrors.NewNotFoundError("list")
		}
		return apperrors.NewDatabaseError("update list", err)
	}

	s.logger.Debug("List updated", zap.String("listID", id), zap.String("ownerID", s.ownerID))
	return nil
}

// DeleteList removes the item; deleting a missing list is not an error
func (s *ListStore) DeleteList(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(id),
	})
	if err != nil {
		return apperrors.NewDatabaseError("delete list", err)
	}

	s.logger.Debug("List deleted", zap.String("listID", id), zap.String("ownerID", s.ownerID))
	return nil
}

func (s *ListStore) key(listID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: userPK(s.ownerID)},
		"SK": &types.AttributeValueMemberS{Value: listSK(listID)},
	}
}
