package identity

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DevNectorFoods/Email-Automation/internal/model"
)

// Store is the narrow persistence lookup dedup runs against.
type Store interface {
	FindExisting(ctx context.Context, accountEmail, messageID, contentHash string) (string, bool, error)
}

// Resolution is the dedup decision for one candidate.
type Resolution struct {
	ID    string
	IsNew bool
}

// Resolver decides whether a freshly fetched candidate is new or an update
// of a record seen before. The protocol Message-ID is the primary key when
// present; the content hash is the fallback for senders that omit or reuse
// it. The UID never participates as durable identity, it only feeds the
// fallback hash.
type Resolver struct {
	store  Store
	logger *zap.Logger
}

func NewResolver(store Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// ContentHash derives the fallback identity from the stable textual fields.
func ContentHash(subject, sender string, date time.Time, uid uint32) string {
	input := fmt.Sprintf("%s_%s_%s_%d", subject, sender, date.UTC().Format(time.RFC3339), uid)
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

// VerificationHash derives the stricter secondary hash used to guard
// against servers recycling sequence identifiers.
func VerificationHash(uid uint32, date time.Time, contentHash string) string {
	input := fmt.Sprintf("%d_%s_%s", uid, date.UTC().Format(time.RFC3339), contentHash)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Resolve fills the candidate's hash fields and assigns its stored
// identity: the existing record id on a dedup hit, a fresh UUID otherwise.
// Lookup failures are fail-open so ingestion never silently drops a
// message.
func (r *Resolver) Resolve(ctx context.Context, email *model.Email) Resolution {
	email.ContentHash = ContentHash(email.Subject, email.Sender, email.Date, email.UID)
	email.VerificationHash = VerificationHash(email.UID, email.Date, email.ContentHash)

	id, found, err := r.store.FindExisting(ctx, email.AccountEmail, email.MessageID, email.ContentHash)
	if err != nil {
		r.logger.Warn("Dedup lookup failed, treating message as new",
			zap.String("account", email.AccountEmail),
			zap.String("message_id", email.MessageID),
			zap.Error(err),
		)
		email.ID = uuid.NewString()
		return Resolution{ID: email.ID, IsNew: true}
	}

	if found {
		email.ID = id
		return Resolution{ID: id, IsNew: false}
	}

	email.ID = uuid.NewString()
	return Resolution{ID: email.ID, IsNew: true}
}
