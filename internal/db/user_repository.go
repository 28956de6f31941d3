package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"trackflow-backend/internal/models"
)

// firestoreUserRepository implements UserRepository using Firestore.
type firestoreUserRepository struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestoreUserRepository creates a new instance of firestoreUserRepository.
func NewFirestoreUserRepository(client *firestore.Client, logger *zap.Logger) UserRepository {
	if client == nil {
		panic("Firestore client is not initialized for UserRepository")
	}
	return &firestoreUserRepository{client: client, logger: logger.Named("user_repository")}
}

// Create adds a new user document keyed by the Firebase Auth UID.
func (r *firestoreUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return errors.New("user ID cannot be empty for Create operation")
	}
	_, err := userDoc(r.client, user.ID).Create(ctx, user)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("user with ID '%s': %w", user.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create user with ID '%s': %w", user.ID, err)
	}
	return nil
}

// GetByID retrieves a user document by its ID (Firebase Auth UID).
func (r *firestoreUserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, errors.New("userID cannot be empty for GetByID operation")
	}
	docSnap, err := userDoc(r.client, userID).Get(ctx)
	if err != nil {
		return nil, wrapGetError(err, "user", userID)
	}
	return decodeUser(docSnap)
}

// Update overwrites the user document with the given state. UpdatedAt is left zero in the
// written copy so the server timestamp applies.
func (r *firestoreUserRepository) Update(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return errors.New("user ID cannot be empty for Update operation")
	}
	doc := *user
	doc.UpdatedAt = time.Time{}
	if _, err := userDoc(r.client, user.ID).Set(ctx, &doc); err != nil {
		return fmt.Errorf("failed to update user with ID '%s': %w", user.ID, err)
	}
	user.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateInTransaction runs a read-modify-write of one user document in a Firestore transaction.
func (r *firestoreUserRepository) UpdateInTransaction(ctx context.Context, userID string, mutate func(user *models.User) error) (*models.User, error) {
	if userID == "" {
		return nil, errors.New("userID cannot be empty for UpdateInTransaction operation")
	}
	ref := userDoc(r.client, userID)
	var updated *models.User
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docSnap, err := tx.Get(ref)
		if err != nil {
			return wrapGetError(err, "user", userID)
		}
		user, err := decodeUser(docSnap)
		if err != nil {
			return err
		}
		if err := mutate(user); err != nil {
			return err
		}
		doc := *user
		doc.UpdatedAt = time.Time{}
		if err := tx.Set(ref, &doc); err != nil {
			return fmt.Errorf("failed to update user with ID '%s': %w", userID, err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now().UTC()
	return updated, nil
}

// List returns users ordered by creation time, newest first.
func (r *firestoreUserRepository) List(ctx context.Context, paginationParams map[string]string) ([]*models.User, error) {
	coll := r.client.Collection(usersCollection)
	query := coll.OrderBy("createdAt", firestore.Desc).Limit(pageSize(paginationParams))
	query, err := applyStartAfter(ctx, query, coll, paginationParams["startAfter"])
	if err != nil {
		return nil, err
	}
	return r.collect(query.Documents(ctx))
}

// ListLapsedPremium finds premium users whose end date has passed.
func (r *firestoreUserRepository) ListLapsedPremium(ctx context.Context, now time.Time) ([]*models.User, error) {
	query := r.client.Collection(usersCollection).
		Where("isPremium", "==", true).
		Where("premiumEndDate", "<=", now)
	return r.collect(query.Documents(ctx))
}

// GetByStripeCustomerID looks a user up by the Stripe customer linked at checkout.
func (r *firestoreUserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	if customerID == "" {
		return nil, errors.New("customerID cannot be empty")
	}
	users, err := r.collect(r.client.Collection(usersCollection).
		Where("stripeCustomerId", "==", customerID).Limit(1).Documents(ctx))
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user with stripe customer '%s' not found: %w", customerID, ErrNotFound)
	}
	return users[0], nil
}

// Count counts all users, or those where field == value.
func (r *firestoreUserRepository) Count(ctx context.Context, field string, value interface{}) (int64, error) {
	query := r.client.Collection(usersCollection).Query
	if field != "" {
		query = query.Where(field, "==", value)
	}
	return countQuery(ctx, query)
}

func (r *firestoreUserRepository) collect(iter *firestore.DocumentIterator) ([]*models.User, error) {
	defer iter.Stop()
	var users []*models.User
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate users: %w", err)
		}
		user, err := decodeUser(doc)
		if err != nil {
			r.logger.Warn("Skipping undecodable user document", zap.String("userID", doc.Ref.ID), zap.Error(err))
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

func decodeUser(docSnap *firestore.DocumentSnapshot) (*models.User, error) {
	var user models.User
	if err := docSnap.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user data for ID '%s': %w", docSnap.Ref.ID, err)
	}
	user.ID = docSnap.Ref.ID
	return &user, nil
}
