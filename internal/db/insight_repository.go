package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"trackflow-backend/internal/models"
)

type firestoreInsightRepository struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestoreInsightRepository creates the aiResponses repository.
func NewFirestoreInsightRepository(client *firestore.Client, logger *zap.Logger) InsightRepository {
	if client == nil {
		panic("Firestore client is not initialized for InsightRepository")
	}
	return &firestoreInsightRepository{client: client, logger: logger.Named("insight_repository")}
}

func (r *firestoreInsightRepository) responses(userID string) *firestore.CollectionRef {
	return userDoc(r.client, userID).Collection(aiResponsesCollection)
}

func (r *firestoreInsightRepository) Create(ctx context.Context, userID string, resp *models.AIResponse) (string, error) {
	if userID == "" {
		return "", errors.New("userID cannot be empty for Create operation")
	}
	docRef := r.responses(userID).NewDoc()
	resp.ID = docRef.ID
	if _, err := docRef.Create(ctx, resp); err != nil {
		return "", fmt.Errorf("failed to store AI response: %w", err)
	}
	resp.CreatedAt = time.Now().UTC()
	return docRef.ID, nil
}

func (r *firestoreInsightRepository) GetByID(ctx context.Context, userID, insightID string) (*models.AIResponse, error) {
	if insightID == "" {
		return nil, errors.New("insightID cannot be empty for GetByID operation")
	}
	docSnap, err := r.responses(userID).Doc(insightID).Get(ctx)
	if err != nil {
		return nil, wrapGetError(err, "AI response", insightID)
	}
	var resp models.AIResponse
	if err := docSnap.DataTo(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode AI response '%s': %w", insightID, err)
	}
	resp.ID = docSnap.Ref.ID
	return &resp, nil
}

// List returns a user's stored responses newest first, optionally for one tracker.
func (r *firestoreInsightRepository) List(ctx context.Context, userID, tracker string, paginationParams map[string]string) ([]*models.AIResponse, error) {
	coll := r.responses(userID)
	query := coll.Query
	if tracker != "" {
		query = query.Where("tracker", "==", tracker)
	}
	query = query.OrderBy("createdAt", firestore.Desc).Limit(pageSize(paginationParams))
	query, err := applyStartAfter(ctx, query, coll, paginationParams["startAfter"])
	if err != nil {
		return nil, err
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []*models.AIResponse
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate AI responses for user '%s': %w", userID, err)
		}
		var resp models.AIResponse
		if err := doc.DataTo(&resp); err != nil {
			r.logger.Warn("Skipping undecodable AI response", zap.String("insightID", doc.Ref.ID), zap.Error(err))
			continue
		}
		resp.ID = doc.Ref.ID
		out = append(out, &resp)
	}
	return out, nil
}

func (r *firestoreInsightRepository) Delete(ctx context.Context, userID, insightID string) error {
	if _, err := r.responses(userID).Doc(insightID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete AI response '%s': %w", insightID, err)
	}
	return nil
}

// CountSince counts responses created at or after since; it backs the daily quota.
func (r *firestoreInsightRepository) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	n, err := countQuery(ctx, r.responses(userID).Where("createdAt", ">=", since))
	if err != nil {
		return 0, fmt.Errorf("failed to count AI responses for user '%s': %w", userID, err)
	}
	return int(n), nil
}
