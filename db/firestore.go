package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"carbonledger/models"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	fieldDataCollection = "field_data"
	draftKeysCollection = "draft_keys"
	usersCollection     = "users"
	auditLogsCollection = "audit_logs"
)

// FirestoreDB wraps the Firestore client
type FirestoreDB struct {
	client *firestore.Client
	logger *zap.Logger
}

// draftIndexEntry maps an (owner, plot) pair to its draft record.
type draftIndexEntry struct {
	OwnerID  string    `firestore:"owner_id"`
	PlotID   string    `firestore:"plot_id"`
	RecordID string    `firestore:"record_id"`
	Updated  time.Time `firestore:"updated_at"`
}

// NewFirestoreDB initializes a new Firestore client
func NewFirestoreDB(ctx context.Context, projectID, credentialsPath string, logger *zap.Logger) (*FirestoreDB, error) {
	opt := option.WithCredentialsFile(credentialsPath)

	config := &firebase.Config{ProjectID: projectID}
	app, err := firebase.NewApp(ctx, config, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firestore client: %w", err)
	}

	logger.Info("connected to Firestore", zap.String("project", projectID))

	return &FirestoreDB{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Firestore client
func (db *FirestoreDB) Close() error {
	return db.client.Close()
}

func (db *FirestoreDB) fieldDataRef(id string) *firestore.DocumentRef {
	return db.client.Collection(fieldDataCollection).Doc(id)
}

func (db *FirestoreDB) draftKeyRef(key DraftKey) *firestore.DocumentRef {
	sum := sha256.Sum256([]byte(key.OwnerID + "\x00" + key.PlotID))
	return db.client.Collection(draftKeysCollection).Doc(hex.EncodeToString(sum[:]))
}

func decodeFieldData(snap *firestore.DocumentSnapshot) (*models.FieldData, error) {
	var d models.FieldData
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse field data %s: %w", snap.Ref.ID, err)
	}
	d.ID = snap.Ref.ID
	return &d, nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// readDraftIndex returns the index entry at ref, or nil when none exists.
func readDraftIndex(tx *firestore.Transaction, ref *firestore.DocumentRef) (*draftIndexEntry, error) {
	snap, err := tx.Get(ref)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read draft index: %w", err)
	}
	var entry draftIndexEntry
	if err := snap.DataTo(&entry); err != nil {
		return nil, fmt.Errorf("failed to parse draft index: %w", err)
	}
	return &entry, nil
}

// readIndexedDraft returns the record entry points at when it is still a
// live draft for key.
func (db *FirestoreDB) readIndexedDraft(tx *firestore.Transaction, key DraftKey, entry *draftIndexEntry) (*models.FieldData, error) {
	if entry == nil {
		return nil, nil
	}
	snap, err := tx.Get(db.fieldDataRef(entry.RecordID))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read draft %s: %w", entry.RecordID, err)
	}
	d, err := decodeFieldData(snap)
	if err != nil {
		return nil, err
	}
	if !draftIndexValid(key, d) {
		return nil, nil
	}
	return d, nil
}

// --- Field data operations ---

// UpsertDraft resolves the draft index, the draft itself and the write in one transaction.
func (db *FirestoreDB) UpsertDraft(ctx context.Context, key DraftKey, mutate DraftMutation) (*models.FieldData, error) {
	var result *models.FieldData

	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		keyRef := db.draftKeyRef(key)
		entry, err := readDraftIndex(tx, keyRef)
		if err != nil {
			return err
		}
		existing, err := db.readIndexedDraft(tx, key, entry)
		if err != nil {
			return err
		}

		doc, err := mutate(existing.Clone())
		if err != nil {
			return err
		}
		doc = doc.Clone()

		now := time.Now().UTC()
		var ref *firestore.DocumentRef
		if existing != nil {
			ref = db.fieldDataRef(existing.ID)
			doc.CreatedAt = existing.CreatedAt
		} else {
			ref = db.fieldDataRef(uuid.NewString())
			doc.CreatedAt = now
		}
		doc.ID = ref.ID
		doc.UpdatedAt = now

		if err := tx.Set(ref, doc); err != nil {
			return fmt.Errorf("failed to write field data: %w", err)
		}

		if doc.Status == models.StatusDraft {
			entry := draftIndexEntry{OwnerID: key.OwnerID, PlotID: key.PlotID, RecordID: doc.ID, Updated: now}
			if err := tx.Set(keyRef, entry); err != nil {
				return fmt.Errorf("failed to write draft index: %w", err)
			}
		} else if entry != nil {
			if err := tx.Delete(keyRef); err != nil {
				return fmt.Errorf("failed to release draft index: %w", err)
			}
		}

		result = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetFieldData retrieves a record by ID
func (db *FirestoreDB) GetFieldData(ctx context.Context, id string) (*models.FieldData, error) {
	snap, err := db.fieldDataRef(id).Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("failed to get field data %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get field data: %w", err)
	}
	return decodeFieldData(snap)
}

// ListFieldData retrieves records matching filter, newest first. When the
// composite index for a filter combination is missing, it scans by
// created_at and filters in process instead.
func (db *FirestoreDB) ListFieldData(ctx context.Context, filter FieldDataFilter) ([]*models.FieldData, error) {
	base := db.client.Collection(fieldDataCollection).Query
	q := base
	if filter.Status != "" {
		q = q.Where("status", "==", string(filter.Status))
	}
	if filter.ProjectID != "" {
		q = q.Where("project_id", "==", filter.ProjectID)
	}
	if filter.OwnerID != "" {
		q = q.Where("submitted_by", "==", filter.OwnerID)
	}
	if filter.From != nil {
		q = q.Where("created_at", ">=", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at", "<=", *filter.To)
	}

	records, err := db.collectFieldData(ctx, q.OrderBy("created_at", firestore.Desc), nil)
	if status.Code(err) == codes.FailedPrecondition {
		db.logger.Warn("composite index missing, filtering field data in process", zap.Error(err))
		records, err = db.collectFieldData(ctx, base.OrderBy("created_at", firestore.Desc), filter.Matches)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to iterate field data: %w", err)
	}
	return records, nil
}

// collectFieldData drains q, keeping records accepted by keep (all when nil).
// Iterator errors are returned unwrapped so callers can inspect the status.
func (db *FirestoreDB) collectFieldData(ctx context.Context, q firestore.Query, keep func(*models.FieldData) bool) ([]*models.FieldData, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	records := []*models.FieldData{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		d, err := decodeFieldData(snap)
		if err != nil {
			db.logger.Warn("skipping unreadable field data", zap.String("id", snap.Ref.ID), zap.Error(err))
			continue
		}
		if keep == nil || keep(d) {
			records = append(records, d)
		}
	}
	return records, nil
}

// UpdateFieldData applies mutate to a record inside a transaction and moves
// its draft index entry along with it.
func (db *FirestoreDB) UpdateFieldData(ctx context.Context, id string, mutate func(d *models.FieldData) error) (*models.FieldData, error) {
	var result *models.FieldData
	ref := db.fieldDataRef(id)

	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return fmt.Errorf("failed to update field data %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read field data: %w", err)
		}
		doc, err := decodeFieldData(snap)
		if err != nil {
			return err
		}
		oldKey := draftKeyOf(doc)

		if err := mutate(doc); err != nil {
			return err
		}
		doc.ID = id
		newKey := draftKeyOf(doc)
		isDraft := doc.Status == models.StatusDraft

		// Firestore requires every read before the first write.
		oldRef := db.draftKeyRef(oldKey)
		oldEntry, err := readDraftIndex(tx, oldRef)
		if err != nil {
			return err
		}
		newRef, newEntry := oldRef, oldEntry
		if newKey != oldKey {
			newRef = db.draftKeyRef(newKey)
			if newEntry, err = readDraftIndex(tx, newRef); err != nil {
				return err
			}
		}
		if isDraft && newEntry != nil && newEntry.RecordID != id {
			held, err := db.readIndexedDraft(tx, newKey, newEntry)
			if err != nil {
				return err
			}
			if held != nil {
				return fmt.Errorf("failed to update field data %s: %w", id, ErrDraftConflict)
			}
		}

		now := time.Now().UTC()
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc); err != nil {
			return fmt.Errorf("failed to update field data: %w", err)
		}

		if oldEntry != nil && oldEntry.RecordID == id && (newKey != oldKey || !isDraft) {
			if err := tx.Delete(oldRef); err != nil {
				return fmt.Errorf("failed to release draft index: %w", err)
			}
		}
		if isDraft {
			entry := draftIndexEntry{OwnerID: newKey.OwnerID, PlotID: newKey.PlotID, RecordID: id, Updated: now}
			if err := tx.Set(newRef, entry); err != nil {
				return fmt.Errorf("failed to write draft index: %w", err)
			}
		}

		result = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteFieldData deletes a record and releases its draft index entry.
func (db *FirestoreDB) DeleteFieldData(ctx context.Context, id string) error {
	ref := db.fieldDataRef(id)

	return db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return fmt.Errorf("failed to delete field data %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read field data: %w", err)
		}
		doc, err := decodeFieldData(snap)
		if err != nil {
			return err
		}

		keyRef := db.draftKeyRef(draftKeyOf(doc))
		entry, err := readDraftIndex(tx, keyRef)
		if err != nil {
			return err
		}
		if entry != nil && entry.RecordID == id {
			if err := tx.Delete(keyRef); err != nil {
				return fmt.Errorf("failed to release draft index: %w", err)
			}
		}

		if err := tx.Delete(ref); err != nil {
			return fmt.Errorf("failed to delete field data: %w", err)
		}
		return nil
	})
}

// --- User operations ---

// CreateUser creates a new user in Firestore
func (db *FirestoreDB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := db.client.Collection(usersCollection).Doc(user.UserID).Set(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (db *FirestoreDB) GetUser(ctx context.Context, userID string) (*models.User, error) {
	doc, err := db.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user models.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}

	return &user, nil
}

// GetAllUsers retrieves all users
func (db *FirestoreDB) GetAllUsers(ctx context.Context) ([]models.User, error) {
	iter := db.client.Collection(usersCollection).OrderBy("user_id", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	users := []models.User{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate users: %w", err)
		}

		var user models.User
		if err := doc.DataTo(&user); err != nil {
			db.logger.Warn("skipping unreadable user", zap.String("id", doc.Ref.ID), zap.Error(err))
			continue
		}
		users = append(users, user)
	}

	return users, nil
}

// UpdateUser applies mutate to a user inside a transaction.
func (db *FirestoreDB) UpdateUser(ctx context.Context, userID string, mutate func(u *models.User) error) (*models.User, error) {
	var result *models.User
	ref := db.client.Collection(usersCollection).Doc(userID)

	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return fmt.Errorf("failed to update user %s: %w", userID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read user: %w", err)
		}
		var user models.User
		if err := snap.DataTo(&user); err != nil {
			return fmt.Errorf("failed to parse user: %w", err)
		}
		if err := mutate(&user); err != nil {
			return err
		}
		user.UserID = userID
		user.UpdatedAt = time.Now().UTC()
		if err := tx.Set(ref, &user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		result = &user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// --- Audit operations ---

// CreateAuditLog stores an audit entry keyed by its log ID.
func (db *FirestoreDB) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	_, err := db.client.Collection(auditLogsCollection).Doc(entry.LogID).Set(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}
