package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const opTimeout = 5 * time.Second

type PositionRepository interface {
	Create(ctx context.Context, p *Position) error
	FindByDeviceID(ctx context.Context, deviceID uint16) ([]*Position, error)
	// FindLatestByDeviceID devuelve nil, nil si no hay posiciones.
	FindLatestByDeviceID(ctx context.Context, deviceID uint16) (*Position, error)
}

// ConnectMongo abre el cliente y verifica con un ping.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Database, error) {
	if uri == "" {
		return nil, errors.New("mongodb uri not provided")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client.Database(database), nil
}

type MongoPositionRepository struct {
	collection *mongo.Collection
}

func NewMongoPositionRepository(db *mongo.Database) *MongoPositionRepository {
	return &MongoPositionRepository{collection: db.Collection("positions")}
}

func (r *MongoPositionRepository) Create(ctx context.Context, p *Position) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, p)
	return err
}

func (r *MongoPositionRepository) FindByDeviceID(ctx context.Context, deviceID uint16) ([]*Position, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"device_id": deviceID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var positions []*Position
	if err := cursor.All(ctx, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (r *MongoPositionRepository) FindLatestByDeviceID(ctx context.Context, deviceID uint16) (*Position, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	var p Position
	err := r.collection.FindOne(ctx, bson.M{"device_id": deviceID}, opts).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MemoryPositionRepository guarda posiciones en memoria; sirve para
// correr sin base de datos y para tests.
type MemoryPositionRepository struct {
	mu        sync.RWMutex
	positions map[uint16][]*Position
}

func NewMemoryPositionRepository() *MemoryPositionRepository {
	return &MemoryPositionRepository{positions: make(map[uint16][]*Position)}
}

func (r *MemoryPositionRepository) Create(_ context.Context, p *Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.positions[p.DeviceID] = append(r.positions[p.DeviceID], &cp)
	return nil
}

func (r *MemoryPositionRepository) FindByDeviceID(_ context.Context, deviceID uint16) ([]*Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Position, 0, len(r.positions[deviceID]))
	for _, p := range r.positions[deviceID] {
		cp := *p
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *MemoryPositionRepository) FindLatestByDeviceID(ctx context.Context, deviceID uint16) (*Position, error) {
	all, _ := r.FindByDeviceID(ctx, deviceID)
	if len(all) == 0 {
		return nil, nil
	}
	return all[len(all)-1], nil
}
