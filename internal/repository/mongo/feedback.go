package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cineamore/catalogservice/internal/domain"
)

type ReportRepository struct {
	collection *mongo.Collection
}

type RequestRepository struct {
	collection *mongo.Collection
}

type reportDoc struct {
	ID         string    `bson:"_id"`
	Name       string    `bson:"name,omitempty"`
	Message    string    `bson:"message"`
	MovieID    string    `bson:"movieId,omitempty"`
	MovieTitle string    `bson:"movieTitle,omitempty"`
	Resolved   bool      `bson:"resolved"`
	CreatedAt  time.Time `bson:"createdAt"`
}

type requestDoc struct {
	ID        string    `bson:"_id"`
	Title     string    `bson:"title"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"createdAt"`
}

func NewReportRepository(db *mongo.Database) *ReportRepository {
	return &ReportRepository{collection: db.Collection(reportsCollection)}
}

func (r *ReportRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "createdAt", Value: -1}}})
	return err
}

func (r *ReportRepository) Create(ctx context.Context, report domain.Report) error {
	_, err := r.collection.InsertOne(ctx, reportDoc{
		ID:         report.ID,
		Name:       report.Name,
		Message:    report.Message,
		MovieID:    report.MovieID,
		MovieTitle: report.MovieTitle,
		Resolved:   report.Resolved,
		CreatedAt:  report.CreatedAt.UTC(),
	})
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// List returns reports newest first. A non-positive limit returns all.
func (r *ReportRepository) List(ctx context.Context, onlyOpen bool, limit int) ([]domain.Report, error) {
	query := bson.M{}
	if onlyOpen {
		query["resolved"] = false
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []reportDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	reports := make([]domain.Report, 0, len(docs))
	for _, doc := range docs {
		reports = append(reports, domain.Report{
			ID:         doc.ID,
			Name:       doc.Name,
			Message:    doc.Message,
			MovieID:    doc.MovieID,
			MovieTitle: doc.MovieTitle,
			Resolved:   doc.Resolved,
			CreatedAt:  doc.CreatedAt.UTC(),
		})
	}
	return reports, nil
}

func (r *ReportRepository) SetResolved(ctx context.Context, id string, resolved bool) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"resolved": resolved}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func NewRequestRepository(db *mongo.Database) *RequestRepository {
	return &RequestRepository{collection: db.Collection(requestsCollection)}
}

func (r *RequestRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	return err
}

func (r *RequestRepository) Create(ctx context.Context, request domain.Request) error {
	_, err := r.collection.InsertOne(ctx, requestDoc{
		ID:        request.ID,
		Title:     request.Title,
		Status:    string(request.Status),
		CreatedAt: request.CreatedAt.UTC(),
	})
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// List returns requests newest first, optionally restricted to one status.
func (r *RequestRepository) List(ctx context.Context, status *domain.RequestStatus, limit int) ([]domain.Request, error) {
	query := bson.M{}
	if status != nil {
		query["status"] = string(*status)
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []requestDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	requests := make([]domain.Request, 0, len(docs))
	for _, doc := range docs {
		requests = append(requests, domain.Request{
			ID:        doc.ID,
			Title:     doc.Title,
			Status:    domain.RequestStatus(doc.Status),
			CreatedAt: doc.CreatedAt.UTC(),
		})
	}
	return requests, nil
}

func (r *RequestRepository) SetStatus(ctx context.Context, id string, status domain.RequestStatus) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
