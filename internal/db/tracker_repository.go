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

// firestoreTrackerRepository stores entries under users/{uid}/{collection}. The collection
// name comes from the tracker catalog, so one repository serves every tracker.
type firestoreTrackerRepository struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestoreTrackerRepository creates a new instance of firestoreTrackerRepository.
func NewFirestoreTrackerRepository(client *firestore.Client, logger *zap.Logger) TrackerRepository {
	if client == nil {
		panic("Firestore client is not initialized for TrackerRepository")
	}
	return &firestoreTrackerRepository{client: client, logger: logger.Named("tracker_repository")}
}

func (r *firestoreTrackerRepository) entries(userID, collection string) *firestore.CollectionRef {
	return userDoc(r.client, userID).Collection(collection)
}

// Create adds an entry with an auto-generated ID and sets entry.ID.
func (r *firestoreTrackerRepository) Create(ctx context.Context, userID, collection string, entry *models.TrackerEntry) (string, error) {
	if userID == "" || collection == "" {
		return "", errors.New("userID and collection are required for Create operation")
	}
	docRef := r.entries(userID, collection).NewDoc()
	entry.ID = docRef.ID
	if _, err := docRef.Create(ctx, entry); err != nil {
		return "", fmt.Errorf("failed to create %s entry: %w", collection, err)
	}
	now := time.Now().UTC()
	entry.CreatedAt, entry.UpdatedAt = now, now
	return docRef.ID, nil
}

// GetByID retrieves one entry.
func (r *firestoreTrackerRepository) GetByID(ctx context.Context, userID, collection, entryID string) (*models.TrackerEntry, error) {
	if entryID == "" {
		return nil, errors.New("entryID cannot be empty for GetByID operation")
	}
	docSnap, err := r.entries(userID, collection).Doc(entryID).Get(ctx)
	if err != nil {
		return nil, wrapGetError(err, collection+" entry", entryID)
	}
	return decodeEntry(docSnap)
}

// List returns entries in [From, To), newest first.
func (r *firestoreTrackerRepository) List(ctx context.Context, userID, collection, tracker string, q models.EntryQuery) ([]*models.TrackerEntry, error) {
	if userID == "" || collection == "" {
		return nil, errors.New("userID and collection are required for List operation")
	}
	coll := r.entries(userID, collection)
	query := coll.Query
	if tracker != "" {
		query = query.Where("tracker", "==", tracker)
	}
	if !q.From.IsZero() {
		query = query.Where("loggedAt", ">=", q.From)
	}
	if !q.To.IsZero() {
		query = query.Where("loggedAt", "<", q.To)
	}
	query = query.OrderBy("loggedAt", firestore.Desc)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	query, err := applyStartAfter(ctx, query, coll, q.StartAfter)
	if err != nil {
		return nil, err
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []*models.TrackerEntry
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate %s entries for user '%s': %w", collection, userID, err)
		}
		entry, err := decodeEntry(doc)
		if err != nil {
			r.logger.Warn("Skipping undecodable entry", zap.String("collection", collection), zap.String("entryID", doc.Ref.ID), zap.Error(err))
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// Update overwrites an entry; the server timestamp refreshes updatedAt.
func (r *firestoreTrackerRepository) Update(ctx context.Context, userID, collection string, entry *models.TrackerEntry) error {
	if entry.ID == "" {
		return errors.New("entry ID cannot be empty for Update operation")
	}
	doc := *entry
	doc.UpdatedAt = time.Time{}
	if _, err := r.entries(userID, collection).Doc(entry.ID).Set(ctx, &doc); err != nil {
		return fmt.Errorf("failed to update %s entry '%s': %w", collection, entry.ID, err)
	}
	entry.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes an entry. Deleting a missing entry is not an error in Firestore, so callers
// check existence first when they need a 404.
func (r *firestoreTrackerRepository) Delete(ctx context.Context, userID, collection, entryID string) error {
	if entryID == "" {
		return errors.New("entryID cannot be empty for Delete operation")
	}
	if _, err := r.entries(userID, collection).Doc(entryID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s entry '%s': %w", collection, entryID, err)
	}
	return nil
}

func decodeEntry(docSnap *firestore.DocumentSnapshot) (*models.TrackerEntry, error) {
	var entry models.TrackerEntry
	if err := docSnap.DataTo(&entry); err != nil {
		return nil, fmt.Errorf("failed to decode entry '%s': %w", docSnap.Ref.ID, err)
	}
	entry.ID = docSnap.Ref.ID
	return &entry, nil
}
