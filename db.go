package main

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"imaging-gateway/retrieval"
)

const requestsCollection = "inference_requests"

// FirestoreDB persists inference requests in Firestore and implements
// the retrieval repository.
type FirestoreDB struct {
	client     *firestore.Client
	maxRetries int
}

// NewFirestoreDB creates a new Firestore client for the given project ID.
func NewFirestoreDB(ctx context.Context, projectID string, maxRetries int) (*FirestoreDB, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &FirestoreDB{client: client, maxRetries: maxRetries}, nil
}

// Close releases underlying Firestore resources.
func (db *FirestoreDB) Close() error {
	return db.client.Close()
}

// Add queues a new inference request. A missing transaction ID gets one
// assigned; the ID doubles as the document key.
func (db *FirestoreDB) Add(ctx context.Context, req *retrieval.InferenceRequest) error {
	if req == nil {
		return fmt.Errorf("nil request")
	}
	if req.TransactionID == "" {
		req.TransactionID = uuid.NewString()
	}
	req.State = retrieval.StateQueued
	req.Status = ""
	req.TryCount = 0
	_, err := db.client.Collection(requestsCollection).Doc(req.TransactionID).Set(ctx, req)
	if err != nil {
		return fmt.Errorf("add request (%s): %w", req.TransactionID, err)
	}
	return nil
}

// Get returns a request by transaction ID, nil when it does not exist.
func (db *FirestoreDB) Get(ctx context.Context, transactionID string) (*retrieval.InferenceRequest, error) {
	snap, err := db.client.Collection(requestsCollection).Doc(transactionID).Get(ctx)
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get request (%s): %w", transactionID, err)
	}
	var req retrieval.InferenceRequest
	if err := snap.DataTo(&req); err != nil {
		return nil, fmt.Errorf("decode request (%s): %w", transactionID, err)
	}
	return &req, nil
}

// Take blocks until a queued request can be claimed or ctx ends.
// Claiming flips the document to in_progress inside a transaction so
// concurrent gateways never process the same request.
func (db *FirestoreDB) Take(ctx context.Context) (*retrieval.InferenceRequest, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		req, err := db.claimNext(ctx)
		if err != nil {
			return nil, err
		}
		if req != nil {
			return req, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (db *FirestoreDB) claimNext(ctx context.Context) (*retrieval.InferenceRequest, error) {
	var claimed *retrieval.InferenceRequest
	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		claimed = nil
		query := db.client.Collection(requestsCollection).
			Where("state", "==", retrieval.StateQueued).
			OrderBy("priority", firestore.Desc).
			Limit(1)
		docs, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}
		var req retrieval.InferenceRequest
		if err := docs[0].DataTo(&req); err != nil {
			return fmt.Errorf("decode request (%s): %w", docs[0].Ref.ID, err)
		}
		req.State = retrieval.StateInProgress
		req.TryCount++
		if err := tx.Set(docs[0].Ref, &req); err != nil {
			return err
		}
		claimed = &req
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim next request: %w", err)
	}
	return claimed, nil
}

// Update records the outcome of a processed request. Failures requeue
// until the retry budget runs out, then complete as failed.
func (db *FirestoreDB) Update(ctx context.Context, req *retrieval.InferenceRequest, outcome string) error {
	switch outcome {
	case retrieval.StatusSuccess:
		req.State = retrieval.StateCompleted
		req.Status = retrieval.StatusSuccess
	case retrieval.StatusFail:
		if req.TryCount < db.maxRetries {
			req.State = retrieval.StateQueued
		} else {
			req.State = retrieval.StateCompleted
			req.Status = retrieval.StatusFail
		}
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	_, err := db.client.Collection(requestsCollection).Doc(req.TransactionID).Set(ctx, req)
	if err != nil {
		return fmt.Errorf("update request (%s): %w", req.TransactionID, err)
	}
	return nil
}
