package mongo

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cineamore/catalogservice/internal/domain"
)

type MovieRepository struct {
	collection *mongo.Collection
}

type linkDoc struct {
	Label   string    `bson:"label"`
	URL     string    `bson:"url"`
	AddedAt time.Time `bson:"addedAt"`
}

type visibilityDoc struct {
	State     string    `bson:"state"`
	Reason    string    `bson:"reason,omitempty"`
	ChangedAt time.Time `bson:"changedAt"`
}

type movieDoc struct {
	ID            string        `bson:"_id"`
	Title         string        `bson:"title"`
	Original      string        `bson:"original,omitempty"`
	Year          int           `bson:"year,omitempty"`
	Director      string        `bson:"director,omitempty"`
	Plot          string        `bson:"plot,omitempty"`
	Genre         []string      `bson:"genre"`
	Poster        string        `bson:"poster,omitempty"`
	TMDBID        int           `bson:"tmdbId,omitempty"`
	TMDBRating    float64       `bson:"tmdbRating"`
	Notes         string        `bson:"notes,omitempty"`
	DownloadLinks []linkDoc     `bson:"downloadLinks,omitempty"`
	Visibility    visibilityDoc `bson:"visibility"`
	AddedAt       time.Time     `bson:"addedAt"`
	UpdatedAt     time.Time     `bson:"updatedAt"`
}

// movieUpdateDoc mirrors movieDoc without the immutable _id and addedAt.
type movieUpdateDoc struct {
	Title         string        `bson:"title"`
	Original      string        `bson:"original"`
	Year          int           `bson:"year"`
	Director      string        `bson:"director"`
	Plot          string        `bson:"plot"`
	Genre         []string      `bson:"genre"`
	Poster        string        `bson:"poster"`
	TMDBID        int           `bson:"tmdbId"`
	TMDBRating    float64       `bson:"tmdbRating"`
	Notes         string        `bson:"notes"`
	DownloadLinks []linkDoc     `bson:"downloadLinks"`
	Visibility    visibilityDoc `bson:"visibility"`
	UpdatedAt     time.Time     `bson:"updatedAt"`
}

var candidateProjection = bson.M{
	"title":      1,
	"year":       1,
	"director":   1,
	"poster":     1,
	"tmdbId":     1,
	"tmdbRating": 1,
	"genre":      1,
	"visibility": 1,
}

func NewMovieRepository(db *mongo.Database) *MovieRepository {
	return &MovieRepository{collection: db.Collection(moviesCollection)}
}

func (r *MovieRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "addedAt", Value: -1}}},
		{Keys: bson.D{{Key: "year", Value: -1}}},
		{Keys: bson.D{{Key: "tmdbRating", Value: -1}}},
		{Keys: bson.D{{Key: "visibility.state", Value: 1}}},
		{Keys: bson.D{{Key: "title", Value: "text"}, {Key: "director", Value: "text"}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

// FindVisibleCandidates returns up to limit visible movies whose title,
// director or original title contains substring, case-insensitively.
func (r *MovieRepository) FindVisibleCandidates(ctx context.Context, substring string, limit int) ([]domain.Movie, error) {
	substring = strings.TrimSpace(substring)
	if substring == "" || limit <= 0 {
		return []domain.Movie{}, nil
	}
	pattern := containsPattern(substring)
	query := bson.M{
		"visibility.state": string(domain.VisibilityVisible),
		"$or": bson.A{
			bson.M{"title": pattern},
			bson.M{"director": pattern},
			bson.M{"original": pattern},
		},
	}
	opts := options.Find().SetProjection(candidateProjection).SetLimit(int64(limit))
	return r.find(ctx, query, opts)
}

func (r *MovieRepository) Get(ctx context.Context, id string) (domain.Movie, error) {
	var doc movieDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Movie{}, domain.ErrNotFound
		}
		return domain.Movie{}, err
	}
	return fromMovieDoc(doc), nil
}

func (r *MovieRepository) List(ctx context.Context, filter domain.MovieFilter) ([]domain.Movie, error) {
	direction := -1
	if filter.SortOrder == domain.SortAsc {
		direction = 1
	}
	opts := options.Find().SetSort(bson.D{
		{Key: movieSortField(filter.SortBy), Value: direction},
		{Key: "_id", Value: 1},
	})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return r.find(ctx, movieListQuery(filter), opts)
}

func (r *MovieRepository) Count(ctx context.Context, filter domain.MovieFilter) (int64, error) {
	return r.collection.CountDocuments(ctx, movieListQuery(filter))
}

func (r *MovieRepository) Create(ctx context.Context, movie domain.Movie) error {
	_, err := r.collection.InsertOne(ctx, toMovieDoc(movie))
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *MovieRepository) Update(ctx context.Context, movie domain.Movie) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": movie.ID}, bson.M{"$set": toMovieUpdateDoc(movie)})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MovieRepository) SetVisibility(ctx context.Context, id string, visibility domain.Visibility) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"visibility": toVisibilityDoc(visibility),
		"updatedAt":  visibility.ChangedAt.UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Sample returns up to n random movies in the given visibility state.
func (r *MovieRepository) Sample(ctx context.Context, state domain.VisibilityState, n int) ([]domain.Movie, error) {
	if n <= 0 {
		return []domain.Movie{}, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"visibility.state": string(state)}}},
		{{Key: "$sample", Value: bson.M{"size": n}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []movieDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return fromMovieDocs(docs), nil
}

// TopRated returns visible movies rated above minRating and released after
// minYear, best rated first.
func (r *MovieRepository) TopRated(ctx context.Context, minRating float64, minYear, limit int) ([]domain.Movie, error) {
	query := bson.M{
		"visibility.state": string(domain.VisibilityVisible),
		"tmdbRating":       bson.M{"$gt": minRating},
		"year":             bson.M{"$gt": minYear},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "tmdbRating", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	return r.find(ctx, query, opts)
}

// RecentlyAdded returns visible movies released after minYear, newest
// additions first.
func (r *MovieRepository) RecentlyAdded(ctx context.Context, minYear, limit int) ([]domain.Movie, error) {
	query := bson.M{
		"visibility.state": string(domain.VisibilityVisible),
		"year":             bson.M{"$gt": minYear},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "addedAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	return r.find(ctx, query, opts)
}

func (r *MovieRepository) find(ctx context.Context, query any, opts *options.FindOptions) ([]domain.Movie, error) {
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []movieDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return fromMovieDocs(docs), nil
}

func movieListQuery(filter domain.MovieFilter) bson.M {
	query := bson.M{}
	if filter.State != nil {
		query["visibility.state"] = string(*filter.State)
	}
	if genre := strings.TrimSpace(filter.Genre); genre != "" {
		query["genre"] = bson.M{"$regex": "^" + regexp.QuoteMeta(genre) + "$", "$options": "i"}
	}
	year := bson.M{}
	if filter.YearFrom > 0 {
		year["$gte"] = filter.YearFrom
	}
	if filter.YearTo > 0 {
		year["$lte"] = filter.YearTo
	}
	if len(year) > 0 {
		query["year"] = year
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := containsPattern(search)
		query["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"director": pattern},
			bson.M{"original": pattern},
		}
	}
	return query
}

func containsPattern(value string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(value), "$options": "i"}
}

func movieSortField(sortBy domain.MovieSort) string {
	switch sortBy {
	case domain.MovieSortYear:
		return "year"
	case domain.MovieSortRating:
		return "tmdbRating"
	case domain.MovieSortTitle:
		return "title"
	default:
		return "addedAt"
	}
}

func toMovieDoc(m domain.Movie) movieDoc {
	return movieDoc{
		ID:            m.ID,
		Title:         m.Title,
		Original:      m.Original,
		Year:          m.Year,
		Director:      m.Director,
		Plot:          m.Plot,
		Genre:         nonNilStrings(m.Genre),
		Poster:        m.Poster,
		TMDBID:        m.TMDBID,
		TMDBRating:    m.TMDBRating,
		Notes:         m.Notes,
		DownloadLinks: toLinkDocs(m.DownloadLinks),
		Visibility:    toVisibilityDoc(m.Visibility),
		AddedAt:       m.AddedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

func toMovieUpdateDoc(m domain.Movie) movieUpdateDoc {
	return movieUpdateDoc{
		Title:         m.Title,
		Original:      m.Original,
		Year:          m.Year,
		Director:      m.Director,
		Plot:          m.Plot,
		Genre:         nonNilStrings(m.Genre),
		Poster:        m.Poster,
		TMDBID:        m.TMDBID,
		TMDBRating:    m.TMDBRating,
		Notes:         m.Notes,
		DownloadLinks: toLinkDocs(m.DownloadLinks),
		Visibility:    toVisibilityDoc(m.Visibility),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

func toVisibilityDoc(v domain.Visibility) visibilityDoc {
	state := v.State
	if state == "" {
		state = domain.VisibilityVisible
	}
	return visibilityDoc{State: string(state), Reason: v.Reason, ChangedAt: v.ChangedAt.UTC()}
}

func toLinkDocs(links []domain.DownloadLink) []linkDoc {
	if len(links) == 0 {
		return nil
	}
	docs := make([]linkDoc, 0, len(links))
	for _, l := range links {
		docs = append(docs, linkDoc{Label: l.Label, URL: l.URL, AddedAt: l.AddedAt.UTC()})
	}
	return docs
}

func fromMovieDoc(doc movieDoc) domain.Movie {
	var links []domain.DownloadLink
	for _, l := range doc.DownloadLinks {
		links = append(links, domain.DownloadLink{Label: l.Label, URL: l.URL, AddedAt: l.AddedAt.UTC()})
	}
	return domain.Movie{
		ID:            doc.ID,
		Title:         doc.Title,
		Original:      doc.Original,
		Year:          doc.Year,
		Director:      doc.Director,
		Plot:          doc.Plot,
		Genre:         nonNilStrings(doc.Genre),
		Poster:        doc.Poster,
		TMDBID:        doc.TMDBID,
		TMDBRating:    doc.TMDBRating,
		Notes:         doc.Notes,
		DownloadLinks: links,
		Visibility: domain.Visibility{
			State:     domain.VisibilityState(doc.Visibility.State),
			Reason:    doc.Visibility.Reason,
			ChangedAt: doc.Visibility.ChangedAt.UTC(),
		},
		AddedAt:   doc.AddedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
}

func fromMovieDocs(docs []movieDoc) []domain.Movie {
	movies := make([]domain.Movie, 0, len(docs))
	for _, doc := range docs {
		movies = append(movies, fromMovieDoc(doc))
	}
	return movies
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
