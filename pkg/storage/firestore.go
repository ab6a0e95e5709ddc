package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/tallywatt/tallywatt/pkg/log"
	"github.com/tallywatt/tallywatt/pkg/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements Database using Google Cloud Firestore. Each
// blob lives in its own document under one collection, stored as a JSON
// string plus its schema version.
type FirestoreProvider struct {
	client     *firestore.Client
	projectID  string
	database   string
	collection string
}

const (
	settingsDoc    = "settings"
	ledgerStateDoc = "ledger_state"
)

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	collection := lflag.String("firestore-collection", "tallywatt", "Collection holding the engine documents")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.collection = *collection

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	if f.collection == "" {
		f.collection = "tallywatt"
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// getBlob reads one document's "json" field and unmarshals it into out,
// returning the stored version.
func (f *FirestoreProvider) getBlob(ctx context.Context, docID string, out any) (int, error) {
	doc, err := f.client.Collection(f.collection).Doc(docID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to fetch %s doc: %w", docID, err)
	}

	var version int
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			version = int(vInt)
		}
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "doc missing json", slog.String("doc", docID))
		return 0, fmt.Errorf("document %s missing 'json' field: %w", docID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "doc json not string", slog.String("doc", docID))
		return 0, fmt.Errorf("document %s 'json' field is not a string", docID)
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal doc json", slog.String("doc", docID), slog.Any("err", err))
		return 0, fmt.Errorf("failed to unmarshal %s json: %w", docID, err)
	}
	return version, nil
}

// setBlob writes one document as a JSON string plus its version.
func (f *FirestoreProvider) setBlob(ctx context.Context, docID string, in any, version int) error {
	jsonBytes, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", docID, err)
	}
	_, err = f.client.Collection(f.collection).Doc(docID).Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": version,
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", docID, err)
	}
	return nil
}

// GetSettings retrieves the settings document.
func (f *FirestoreProvider) GetSettings(ctx context.Context) (types.Settings, int, error) {
	var s types.Settings
	version, err := f.getBlob(ctx, settingsDoc, &s)
	if err != nil {
		return types.Settings{}, 0, err
	}
	return s, version, nil
}

// SetSettings saves the settings document, stored as a JSON string for
// portability.
func (f *FirestoreProvider) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	return f.setBlob(ctx, settingsDoc, settings, version)
}

// LoadLedgerState retrieves the persisted ledger snapshot.
func (f *FirestoreProvider) LoadLedgerState(ctx context.Context) (types.LedgerState, int, error) {
	var state types.LedgerState
	version, err := f.getBlob(ctx, ledgerStateDoc, &state)
	if err != nil {
		return types.LedgerState{}, 0, err
	}
	return state, version, nil
}

// SaveLedgerState persists the ledger snapshot.
func (f *FirestoreProvider) SaveLedgerState(ctx context.Context, state types.LedgerState, version int) error {
	return f.setBlob(ctx, ledgerStateDoc, state, version)
}

var _ Database = (*FirestoreProvider)(nil)
