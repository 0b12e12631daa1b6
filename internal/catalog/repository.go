package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quoteflow/quoteflow/internal/platform/httpx"
)

// Repository defines persistence operations for the catalog.
type Repository interface {
	List(ctx context.Context, req ListRequest) ([]Product, int, error)
	Get(ctx context.Context, id int64) (*Product, error)
	GetByCode(ctx context.Context, code string) (*Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id int64) error
	SetVisibility(ctx context.Context, id int64, visible bool) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Monetary columns come back as text so decimal parsing stays exact.
const productColumns = `id, code, name, description, category, unit, price::text, image_url, is_visible, created_at, updated_at`

// List returns a page of products plus the total row count.
func (r *PGRepository) List(ctx context.Context, req ListRequest) ([]Product, int, error) {
	var (
		conds []string
		args  []any
	)
	if req.VisibleOnly {
		conds = append(conds, "is_visible")
	}
	if s := strings.TrimSpace(req.Search); s != "" {
		args = append(args, "%"+s+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY name`
	if req.PerPage > 0 {
		args = append(args, req.PerPage)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		offset := (req.Page - 1) * req.PerPage
		if offset > 0 {
			args = append(args, offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	return products, total, rows.Err()
}

// Get fetches a product by primary key.
func (r *PGRepository) Get(ctx context.Context, id int64) (*Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// GetByCode fetches a product by its unique code.
func (r *PGRepository) GetByCode(ctx context.Context, code string) (*Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE code = $1`, code)
	return scanProduct(row)
}

// Create inserts a product and fills in generated fields.
func (r *PGRepository) Create(ctx context.Context, p *Product) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO products (code, name, description, category, unit, price, image_url, is_visible)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)
		RETURNING id, created_at, updated_at`,
		p.Code, p.Name, p.Description, p.Category, p.Unit, p.Price.StringFixed(2), p.ImageURL, p.IsVisible,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return httpx.ErrConflict
	}
	return err
}

// Update rewrites all mutable columns of a product.
func (r *PGRepository) Update(ctx context.Context, p *Product) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products SET
			code = $1, name = $2, description = $3, category = $4, unit = $5,
			price = $6::numeric, image_url = $7, is_visible = $8, updated_at = NOW()
		WHERE id = $9`,
		p.Code, p.Name, p.Description, p.Category, p.Unit, p.Price.StringFixed(2), p.ImageURL, p.IsVisible, p.ID)
	if isUniqueViolation(err) {
		return httpx.ErrConflict
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// Delete removes a product.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// SetVisibility toggles whether a product appears on the public catalog.
func (r *PGRepository) SetVisibility(ctx context.Context, id int64, visible bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET is_visible = $1, updated_at = NOW() WHERE id = $2`, visible, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		p        Product
		priceRaw string
	)
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Category, &p.Unit, &priceRaw, &p.ImageURL, &p.IsVisible, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	if p.Price, err = parsePrice(priceRaw); err != nil {
		return nil, err
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*PGRepository)(nil)
