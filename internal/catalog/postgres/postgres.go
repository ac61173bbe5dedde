// Package postgres is the PostgreSQL catalog backend. Filtering is pushed
// down to SQL and returns the same listings, in the same order, as
// in-process evaluation over FetchAllProperties.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ffimoveis/imoveis/internal/catalog"
	"github.com/ffimoveis/imoveis/internal/domain"
	"github.com/ffimoveis/imoveis/pkg/database"
	apperrors "github.com/ffimoveis/imoveis/pkg/errors"
)

const propertyColumns = `id, title, neighborhood_name, city, state, price, property_type, location_id,
		description, condominium_fee, iptu, useful_area, total_area, bedrooms, bathrooms, parking_spaces,
		amenities, condominium_features, images, realtor_name, realtor_creci, realtor_phone, realtor_whatsapp,
		created_at, updated_at`

// Listing order shared by every multi-row query.
const orderBy = `ORDER BY created_at, id`

// Catalog implements catalog.Catalog, catalog.Searcher and catalog.Writer.
type Catalog struct {
	db  database.TxBeginner
	now func() time.Time
}

// New creates a PostgreSQL-backed catalog.
func New(db database.TxBeginner) *Catalog {
	return &Catalog{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// FetchAllProperties returns every listing.
func (c *Catalog) FetchAllProperties(ctx context.Context) (records []domain.PropertyRecord, err error) {
	query := `SELECT ` + propertyColumns + ` FROM properties ` + orderBy

	ctx, end := database.TraceQuery(ctx, "FetchAllProperties", query)
	defer func() { end(err) }()

	return c.queryProperties(ctx, query)
}

// Search returns the listings matching f.
func (c *Catalog) Search(ctx context.Context, f domain.SearchFilters) (records []domain.PropertyRecord, err error) {
	where, args := whereClause(f)
	query := `SELECT ` + propertyColumns + ` FROM properties ` + where + ` ` + orderBy

	ctx, end := database.TraceQuery(ctx, "SearchProperties", query)
	defer func() { end(err) }()

	return c.queryProperties(ctx, query, args...)
}

// whereClause builds the filter predicate. Price is always constrained.
func whereClause(f domain.SearchFilters) (string, []any) {
	conditions := []string{"price BETWEEN $1 AND $2"}
	args := []any{f.PriceRange.Low, f.PriceRange.High}
	argIndex := 3

	if f.PropertyType != "" {
		conditions = append(conditions, fmt.Sprintf("property_type = $%d", argIndex))
		args = append(args, string(f.PropertyType))
		argIndex++
	}

	if f.LocationID != "" {
		conditions = append(conditions, fmt.Sprintf("location_id = $%d", argIndex))
		args = append(args, f.LocationID)
		argIndex++
	}

	if f.Query != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(title ILIKE $%d OR neighborhood_name ILIKE $%d OR city ILIKE $%d)", argIndex, argIndex, argIndex))
		args = append(args, "%"+escapeLike(f.Query)+"%")
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes the query match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// FetchPriceBounds returns the MIN/MAX price aggregate.
func (c *Catalog) FetchPriceBounds(ctx context.Context) (b domain.Bounds, err error) {
	query := `SELECT MIN(price), MAX(price) FROM properties`

	ctx, end := database.TraceQuery(ctx, "FetchPriceBounds", query)
	defer func() { end(err) }()

	var lo, hi *float64
	if err = c.db.QueryRow(ctx, query).Scan(&lo, &hi); err != nil {
		return domain.Bounds{}, fmt.Errorf("query price bounds: %w", err)
	}
	if lo == nil || hi == nil {
		return domain.Bounds{}, catalog.ErrNoPrices
	}
	return domain.Bounds{Min: *lo, Max: *hi}, nil
}

// FetchLocations returns the locations that have at least one listing.
func (c *Catalog) FetchLocations(ctx context.Context) (locs []domain.Location, err error) {
	query := `
		SELECT l.id, l.display_name
		FROM locations l
		WHERE EXISTS (SELECT 1 FROM properties p WHERE p.location_id = l.id)`

	ctx, end := database.TraceQuery(ctx, "FetchLocations", query)
	defer func() { end(err) }()

	rows, err := c.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	locs = make([]domain.Location, 0)
	for rows.Next() {
		var l domain.Location
		if err := rows.Scan(&l.ID, &l.DisplayName); err != nil {
			return nil, fmt.Errorf("scan location row: %w", err)
		}
		locs = append(locs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate location rows: %w", err)
	}

	catalog.SortLocations(locs)
	return locs, nil
}

// FetchNeighborhoods returns the neighborhoods of locationID that still
// have at least one listing.
func (c *Catalog) FetchNeighborhoods(ctx context.Context, locationID string) (ns []domain.Neighborhood, err error) {
	query := `
		SELECT n.name, n.location_id
		FROM neighborhoods n
		WHERE n.location_id = $1
		  AND EXISTS (
			SELECT 1 FROM properties p
			WHERE p.location_id = n.location_id AND p.neighborhood_name = n.name
		  )`

	ctx, end := database.TraceQuery(ctx, "FetchNeighborhoods", query)
	defer func() { end(err) }()

	rows, err := c.db.Query(ctx, query, locationID)
	if err != nil {
		return nil, fmt.Errorf("query neighborhoods: %w", err)
	}
	defer rows.Close()

	ns = make([]domain.Neighborhood, 0)
	for rows.Next() {
		var n domain.Neighborhood
		if err := rows.Scan(&n.Name, &n.LocationID); err != nil {
			return nil, fmt.Errorf("scan neighborhood row: %w", err)
		}
		ns = append(ns, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate neighborhood rows: %w", err)
	}

	catalog.SortNeighborhoods(ns)
	return ns, nil
}

// GetProperty retrieves a listing by id.
func (c *Catalog) GetProperty(ctx context.Context, id string) (record *domain.PropertyRecord, err error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetProperty", query)
	defer func() { end(err) }()

	r, err := scanProperty(c.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("property", id)
		}
		return nil, fmt.Errorf("get property: %w", err)
	}
	return r, nil
}

// UpsertProperty inserts or updates a listing together with its location
// and neighborhood rows, in one transaction.
func (c *Catalog) UpsertProperty(ctx context.Context, record *domain.PropertyRecord) (err error) {
	catalog.PrepareForWrite(record, c.now())

	ctx, end := database.TraceQuery(ctx, "UpsertProperty", "INSERT INTO properties ... ON CONFLICT (id) DO UPDATE")
	defer func() { end(err) }()

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert property tx: %w", err)
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO locations (id, display_name, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		record.LocationID, record.City, record.State,
	); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("upsert location: %w", err)
	}

	if record.NeighborhoodName != "" {
		if _, err = tx.Exec(ctx, `
			INSERT INTO neighborhoods (name, location_id)
			VALUES ($1, $2)
			ON CONFLICT (location_id, name) DO NOTHING`,
			record.NeighborhoodName, record.LocationID,
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("upsert neighborhood: %w", err)
		}
	}

	var createdAt time.Time
	if err = tx.QueryRow(ctx, `
		INSERT INTO properties (`+propertyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			neighborhood_name = EXCLUDED.neighborhood_name,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			price = EXCLUDED.price,
			property_type = EXCLUDED.property_type,
			location_id = EXCLUDED.location_id,
			description = EXCLUDED.description,
			condominium_fee = EXCLUDED.condominium_fee,
			iptu = EXCLUDED.iptu,
			useful_area = EXCLUDED.useful_area,
			total_area = EXCLUDED.total_area,
			bedrooms = EXCLUDED.bedrooms,
			bathrooms = EXCLUDED.bathrooms,
			parking_spaces = EXCLUDED.parking_spaces,
			amenities = EXCLUDED.amenities,
			condominium_features = EXCLUDED.condominium_features,
			images = EXCLUDED.images,
			realtor_name = EXCLUDED.realtor_name,
			realtor_creci = EXCLUDED.realtor_creci,
			realtor_phone = EXCLUDED.realtor_phone,
			realtor_whatsapp = EXCLUDED.realtor_whatsapp,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at`,
		propertyArgs(record)...,
	).Scan(&createdAt); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("upsert property: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert property: %w", err)
	}
	record.CreatedAt = createdAt
	return nil
}

// DeleteProperty removes a listing.
func (c *Catalog) DeleteProperty(ctx context.Context, id string) (err error) {
	query := `DELETE FROM properties WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteProperty", query)
	defer func() { end(err) }()

	tag, err := c.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("property", id)
	}
	return nil
}

func (c *Catalog) queryProperties(ctx context.Context, query string, args ...any) ([]domain.PropertyRecord, error) {
	rows, err := c.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	defer rows.Close()

	records := make([]domain.PropertyRecord, 0)
	for rows.Next() {
		r, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan property row: %w", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate property rows: %w", err)
	}
	return records, nil
}

func scanProperty(row pgx.Row) (*domain.PropertyRecord, error) {
	var (
		r            domain.PropertyRecord
		propertyType string
	)
	if err := row.Scan(
		&r.ID,
		&r.Title,
		&r.NeighborhoodName,
		&r.City,
		&r.State,
		&r.Price,
		&propertyType,
		&r.LocationID,
		&r.Description,
		&r.CondominiumFee,
		&r.IPTU,
		&r.UsefulArea,
		&r.TotalArea,
		&r.Bedrooms,
		&r.Bathrooms,
		&r.ParkingSpaces,
		&r.Amenities,
		&r.CondoFeatures,
		&r.Images,
		&r.RealtorName,
		&r.RealtorCRECI,
		&r.RealtorPhone,
		&r.RealtorWhatsApp,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.PropertyType = domain.PropertyType(propertyType)
	return &r, nil
}

func propertyArgs(r *domain.PropertyRecord) []any {
	return []any{
		r.ID,
		r.Title,
		r.NeighborhoodName,
		r.City,
		r.State,
		r.Price,
		string(r.PropertyType),
		r.LocationID,
		r.Description,
		r.CondominiumFee,
		r.IPTU,
		r.UsefulArea,
		r.TotalArea,
		r.Bedrooms,
		r.Bathrooms,
		r.ParkingSpaces,
		nonNil(r.Amenities),
		nonNil(r.CondoFeatures),
		nonNil(r.Images),
		r.RealtorName,
		r.RealtorCRECI,
		r.RealtorPhone,
		r.RealtorWhatsApp,
		r.CreatedAt,
		r.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
