package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection       = "users"
	aiResponsesCollection = "aiResponses"
	auditLogsCollection   = "auditLogs"

	defaultPageSize = 50
	maxPageSize     = 500
)

// ErrNotFound is returned by repositories when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrAlreadyExists is returned when creating a document whose ID is taken.
var ErrAlreadyExists = errors.New("document already exists")

// userDoc returns users/{uid}.
func userDoc(client *firestore.Client, userID string) *firestore.DocumentRef {
	return client.Collection(usersCollection).Doc(userID)
}

// wrapGetError translates a Firestore read error, mapping NotFound to ErrNotFound.
func wrapGetError(err error, kind, id string) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s with ID '%s' not found: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s with ID '%s': %w", kind, id, err)
}

// pageSize reads "limit" from pagination params, clamped to maxPageSize.
func pageSize(paginationParams map[string]string) int {
	if limitStr, ok := paginationParams["limit"]; ok {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			if limit > maxPageSize {
				return maxPageSize
			}
			return limit
		}
	}
	return defaultPageSize
}

// applyStartAfter positions query after the document startAfterID in coll, if it exists.
func applyStartAfter(ctx context.Context, query firestore.Query, coll *firestore.CollectionRef, startAfterID string) (firestore.Query, error) {
	if startAfterID == "" {
		return query, nil
	}
	snap, err := coll.Doc(startAfterID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return query, fmt.Errorf("startAfter document '%s': %w", startAfterID, ErrNotFound)
		}
		return query, fmt.Errorf("failed to fetch startAfter document '%s': %w", startAfterID, err)
	}
	return query.StartAfter(snap), nil
}

// countQuery runs a server-side count aggregation.
func countQuery(ctx context.Context, query firestore.Query) (int64, error) {
	results, err := query.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("count aggregation failed: %w", err)
	}
	raw, ok := results["all"]
	if !ok {
		return 0, errors.New("count aggregation returned no result")
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count aggregation type %T", raw)
	}
	return value.GetIntegerValue(), nil
}
