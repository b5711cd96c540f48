package supabase

import (
	"context"
	"fmt"

	"taskable/application/ports"
	apperrors "taskable/pkg/errors"

	postgrest "github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

// ListStore implements ports.ListStore over PostgREST. Row visibility is
// enforced server-side by row-level security on the bearer token.
type ListStore struct {
	client *supa.Client
	table  string
	logger *zap.Logger
}

// NewListStore creates a list store on table
func NewListStore(client *supa.Client, table string, logger *zap.Logger) *ListStore {
	return &ListStore{client: client, table: table, logger: logger}
}

// ListLists selects all of ownerID's rows ordered by updated_at desc
func (s *ListStore) ListLists(ctx context.Context, ownerID string) ([]ports.ListRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []ports.ListRecord
	_, err := s.client.From(s.table).
		Select("*", "", false).
		Eq("user_id", ownerID).
		Order("updated_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&records)
	if err != nil {
		s.logger.Error("Failed to select lists", zap.String("ownerID", ownerID), zap.Error(err))
		return nil, apperrors.NewDatabaseError("select lists", err)
	}

	if records == nil {
		records = []ports.ListRecord{}
	}
	return records, nil
}

func (s *ListStore) InsertList(ctx context.Context, record ports.ListRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, err := s.client.From(s.table).
		Insert(record, false, "", "minimal", "").
		Execute()
	if err != nil {
		s.logger.Error("Failed to insert list", zap.String("listID", record.ID), zap.Error(err))
		return apperrors.NewDatabaseError("insert list", err)
	}
	return nil
}

func (s *ListStore) UpdateList(ctx context.Context, id string, update ports.ListUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, err := s.client.From(s.table).
		Update(update, "minimal", "").
		Eq("id", id).
		Execute()
	if err != nil {
		s.logger.Error("Failed to update list", zap.String("listID", id), zap.Error(err))
		return apperrors.NewDatabaseError(fmt.Sprintf("update list %s", id), err)
	}
	return nil
}

func (s *ListStore) DeleteList(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, err := s.client.From(s.table).
		Delete("minimal", "").
		Eq("id", id).
		Execute()
	if err != nil {
		s.logger.Error("Failed to delete list", zap.String("listID", id), zap.Error(err))
		return apperrors.NewDatabaseError(fmt.Sprintf("delete list %s", id), err)
	}
	return nil
}
