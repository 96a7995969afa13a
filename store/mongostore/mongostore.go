// Package mongostore implements store.Store over MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sridharsr7/personal-task-manager/api"
	"github.com/sridharsr7/personal-task-manager/store"
)

const (
	usersCollection = "users"
	tasksCollection = "tasks"

	usernameIndex = "username_1"
	emailIndex    = "email_1"
)

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Username  string             `bson:"username"`
	Email     string             `bson:"email"`
	Mobile    string             `bson:"mobile"`
	Password  string             `bson:"password"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d userDoc) toAPI() api.User {
	return api.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		Mobile:       d.Mobile,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

type taskDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	User        primitive.ObjectID `bson:"user"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	Completed   bool               `bson:"completed"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d taskDoc) toAPI() api.Task {
	return api.Task{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Completed:   d.Completed,
		Owner:       d.User.Hex(),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// Store keeps users and tasks in two collections of one database.
type Store struct {
	client *mongo.Client
	users  *mongo.Collection
	tasks  *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// Open connects to uri, pings the primary and ensures indexes on database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client: client,
		users:  db.Collection(usersCollection),
		tasks:  db.Collection(tasksCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	log.Println("MongoDB connected")
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName(usernameIndex)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName(emailIndex)},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	_, err = s.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create task indexes: %w", err)
	}
	return nil
}

// Drop removes both collections. Used to reset test databases.
func (s *Store) Drop(ctx context.Context) error {
	if err := s.users.Drop(ctx); err != nil {
		return err
	}
	if err := s.tasks.Drop(ctx); err != nil {
		return err
	}
	return s.ensureIndexes(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// objectID parses a hex id. Malformed ids cannot name a stored document, so
// they are reported as missing.
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, store.ErrNotFound
	}
	return oid, nil
}

func (s *Store) CreateUser(ctx context.Context, u api.User) (api.User, error) {
	doc := userDoc{
		ID:        primitive.NewObjectID(),
		Username:  u.Username,
		Email:     u.Email,
		Mobile:    u.Mobile,
		Password:  u.PasswordHash,
		CreatedAt: u.CreatedAt,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if index, ok := duplicateIndex(err); ok {
			if index == emailIndex {
				return api.User{}, store.ErrEmailTaken
			}
			return api.User{}, store.ErrUsernameTaken
		}
		return api.User{}, fmt.Errorf("insert user: %w", err)
	}
	u.ID = doc.ID.Hex()
	return u, nil
}

// duplicateIndex reports whether err is a duplicate-key failure and returns
// the name of the unique index it hit.
func duplicateIndex(err error) (index string, ok bool) {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, writeErr := range we.WriteErrors {
			if writeErr.Code == 11000 {
				return indexName(writeErr.Message), true
			}
		}
	}
	if mongo.IsDuplicateKeyError(err) {
		return indexName(err.Error()), true
	}
	return "", false
}

// indexName extracts "email_1" from
// `E11000 duplicate key error collection: db.users index: email_1 dup key: {...}`.
// The index name precedes the echoed key, so key values cannot spoof it.
func indexName(msg string) string {
	_, rest, ok := strings.Cut(msg, " index: ")
	if !ok {
		return ""
	}
	if fields := strings.Fields(rest); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (api.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return api.User{}, store.ErrNotFound
	}
	if err != nil {
		return api.User{}, fmt.Errorf("find user: %w", err)
	}
	return doc.toAPI(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (api.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return api.User{}, err
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (api.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (api.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

// ownedTask builds the filter matching id only when owner holds it.
func ownedTask(ownerID, id string) (bson.M, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	owner, err := objectID(ownerID)
	if err != nil {
		return nil, err
	}
	return bson.M{"_id": oid, "user": owner}, nil
}

func (s *Store) ListTasks(ctx context.Context, ownerID string) ([]api.Task, error) {
	owner, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return []api.Task{}, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.tasks.Find(ctx, bson.M{"user": owner}, opts)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	var docs []taskDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	tasks := make([]api.Task, 0, len(docs))
	for _, doc := range docs {
		tasks = append(tasks, doc.toAPI())
	}
	return tasks, nil
}

func (s *Store) GetTask(ctx context.Context, ownerID, id string) (api.Task, error) {
	filter, err := ownedTask(ownerID, id)
	if err != nil {
		return api.Task{}, err
	}
	var doc taskDoc
	err = s.tasks.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return api.Task{}, store.ErrNotFound
	}
	if err != nil {
		return api.Task{}, fmt.Errorf("find task: %w", err)
	}
	return doc.toAPI(), nil
}

func (s *Store) CreateTask(ctx context.Context, t api.Task) (api.Task, error) {
	owner, err := primitive.ObjectIDFromHex(t.Owner)
	if err != nil {
		return api.Task{}, fmt.Errorf("task owner %q: %w", t.Owner, err)
	}
	doc := taskDoc{
		ID:          primitive.NewObjectID(),
		User:        owner,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if _, err := s.tasks.InsertOne(ctx, doc); err != nil {
		return api.Task{}, fmt.Errorf("insert task: %w", err)
	}
	t.ID = doc.ID.Hex()
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, ownerID, id string, patch api.TaskPatch, updatedAt time.Time) (api.Task, error) {
	filter, err := ownedTask(ownerID, id)
	if err != nil {
		return api.Task{}, err
	}
	set := bson.M{"updatedAt": updatedAt}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Completed != nil {
		set["completed"] = *patch.Completed
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc taskDoc
	err = s.tasks.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return api.Task{}, store.ErrNotFound
	}
	if err != nil {
		return api.Task{}, fmt.Errorf("update task: %w", err)
	}
	return doc.toAPI(), nil
}

func (s *Store) DeleteTask(ctx context.Context, ownerID, id string) error {
	filter, err := ownedTask(ownerID, id)
	if err != nil {
		return err
	}
	res, err := s.tasks.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
