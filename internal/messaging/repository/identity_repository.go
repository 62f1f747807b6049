package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// IdentityRepository resolves which role partition a user id belongs to
type IdentityRepository interface {
	ResolveRole(ctx context.Context, userID string) (domain.Role, error)
	FindIdentity(ctx context.Context, userID string) (*domain.Identity, error)
}

type identityRepository struct {
	// checked in this order, first match wins
	partitions []partition
}

type partition struct {
	role domain.Role
	coll *mongo.Collection
}

type identityDoc struct {
	FirstName string `bson:"firstName"`
	LastName  string `bson:"lastName"`
	Name      string `bson:"name"`
	Email     string `bson:"email"`
}

// NewMongoIdentityRepository reads the students, alumni and admins collections
func NewMongoIdentityRepository(db *mongo.Database) IdentityRepository {
	return &identityRepository{
		partitions: []partition{
			{role: domain.RoleStudent, coll: db.Collection("students")},
			{role: domain.RoleAlumni, coll: db.Collection("alumni")},
			{role: domain.RoleAdmin, coll: db.Collection("admins")},
		},
	}
}

// idFilter matches ObjectID keyed documents as well as string keyed ones.
func idFilter(userID string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(userID); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, userID}}}
	}
	return bson.M{"_id": userID}
}

func (r *identityRepository) lookup(ctx context.Context, userID string) (domain.Role, *identityDoc, error) {
	if userID == "" {
		return domain.RoleUnknown, nil, nil
	}

	found := make([]*identityDoc, len(r.partitions))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range r.partitions {
		i, p := i, p
		g.Go(func() error {
			var doc identityDoc
			opts := options.FindOne().SetProjection(bson.M{"firstName": 1, "lastName": 1, "name": 1, "email": 1})
			err := p.coll.FindOne(gctx, idFilter(userID), opts).Decode(&doc)
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("lookup %s in %s: %w", userID, p.coll.Name(), err)
			}
			found[i] = &doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.RoleUnknown, nil, err
	}

	for i, doc := range found {
		if doc != nil {
			return r.partitions[i].role, doc, nil
		}
	}
	return domain.RoleUnknown, nil, nil
}

// ResolveRole returns RoleUnknown, nil when the id is in no partition.
func (r *identityRepository) ResolveRole(ctx context.Context, userID string) (domain.Role, error) {
	role, _, err := r.lookup(ctx, userID)
	return role, err
}

// FindIdentity returns nil, nil when the id is in no partition.
func (r *identityRepository) FindIdentity(ctx context.Context, userID string) (*domain.Identity, error) {
	role, doc, err := r.lookup(ctx, userID)
	if err != nil || doc == nil {
		return nil, err
	}
	return &domain.Identity{ID: userID, Name: displayName(doc), Role: role}, nil
}

func displayName(doc *identityDoc) string {
	if full := strings.TrimSpace(doc.FirstName + " " + doc.LastName); full != "" {
		return full
	}
	if doc.Name != "" {
		return doc.Name
	}
	return doc.Email
}
