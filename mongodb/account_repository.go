package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mchub-dev/mchub/domain"
)

// AccountRepositoryMongo implements domain.AccountRepository.
type AccountRepositoryMongo struct {
	collection *mongo.Collection
}

// NewAccountRepositoryMongo creates the repository and ensures the partial
// unique indexes that serialize concurrent binds for the same external id.
func NewAccountRepositoryMongo(ctx context.Context, db *mongo.Database) (*AccountRepositoryMongo, error) {
	repo := &AccountRepositoryMongo{
		collection: db.Collection(AccountsCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create %s indexes: %w", AccountsCollection, err)
	}
	return repo, nil
}

func (r *AccountRepositoryMongo) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			// A Java profile id binds to at most one account. Partial so
			// accounts without a Java binding don't collide on null.
			Keys: bson.D{{Key: "java.profile_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"java.profile_id": bson.M{"$exists": true}}),
		},
		{
			// Same invariant for the Xbox namespace.
			Keys: bson.D{{Key: "xbox.xuid", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"xbox.xuid": bson.M{"$exists": true}}),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return err
	}
	log.Info().Msgf("Indexes for %s collection ensured.", AccountsCollection)
	return nil
}

func (r *AccountRepositoryMongo) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	var account domain.Account
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		log.Error().Err(err).Str("accountID", id).Msg("Error getting account by ID")
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepositoryMongo) FindByExternalID(ctx context.Context, ns domain.Namespace, externalID string) (*domain.Account, error) {
	field, err := externalIDField(ns)
	if err != nil {
		return nil, err
	}

	var account domain.Account
	err = r.collection.FindOne(ctx, bson.M{field: externalID}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		log.Error().Err(err).Str("namespace", string(ns)).Str("externalID", externalID).Msg("Error finding account by external ID")
		return nil, err
	}
	return &account, nil
}

// UpdateBinding sets the namespace subdocument on the account. The partial
// unique index is the final arbiter: a concurrent bind that won the race
// surfaces here as a duplicate key error, mapped to ErrBindingConflict.
func (r *AccountRepositoryMongo) UpdateBinding(ctx context.Context, accountID string, b domain.Binding) (*domain.Account, error) {
	doc, err := bindingDocument(b)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{
		string(b.Namespace): doc,
		"updated_at":        now,
	}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated domain.Account
	err = r.collection.FindOneAndUpdate(ctx, bson.M{"_id": accountID}, update, opts).Decode(&updated)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrBindingConflict
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		log.Error().Err(err).Str("accountID", accountID).Str("namespace", string(b.Namespace)).Msg("Error updating binding")
		return nil, err
	}
	return &updated, nil
}

func (r *AccountRepositoryMongo) RemoveBinding(ctx context.Context, accountID string, ns domain.Namespace) error {
	if _, err := externalIDField(ns); err != nil {
		return err
	}

	filter := bson.M{"_id": accountID, string(ns): bson.M{"$exists": true}}
	update := bson.M{
		"$unset": bson.M{string(ns): ""},
		"$set":   bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("accountID", accountID).Str("namespace", string(ns)).Msg("Error removing binding")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrBindingNotFound
	}
	return nil
}

func externalIDField(ns domain.Namespace) (string, error) {
	switch ns {
	case domain.NamespaceJava:
		return "java.profile_id", nil
	case domain.NamespaceXbox:
		return "xbox.xuid", nil
	default:
		return "", fmt.Errorf("unknown namespace %q", ns)
	}
}

func bindingDocument(b domain.Binding) (bson.M, error) {
	now := time.Now().UTC()
	switch b.Namespace {
	case domain.NamespaceJava:
		return bson.M{
			"profile_id":   b.ExternalID,
			"profile_name": b.DisplayName,
			"linked_at":    now,
		}, nil
	case domain.NamespaceXbox:
		doc := bson.M{
			"xuid":      b.ExternalID,
			"gamertag":  b.DisplayName,
			"linked_at": now,
		}
		if b.AvatarURL != "" {
			doc["avatar_url"] = b.AvatarURL
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unknown namespace %q", b.Namespace)
	}
}

var _ domain.AccountRepository = (*AccountRepositoryMongo)(nil)
