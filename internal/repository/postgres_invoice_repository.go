package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prasetyawan/billing-extractor-service/internal/domain"
)

// uniqueViolation is the PostgreSQL error code raised by the partial
// unique index on active invoice numbers
const uniqueViolation = "23505"

// PostgresInvoiceRepository implements InvoiceRepository using PostgreSQL
type PostgresInvoiceRepository struct {
	db *pgxpool.Pool
}

// NewPostgresInvoiceRepository creates a new PostgreSQL invoice repository
func NewPostgresInvoiceRepository(db *pgxpool.Pool) *PostgresInvoiceRepository {
	return &PostgresInvoiceRepository{
		db: db,
	}
}

// FindActiveByNumber retrieves the active invoice with the given number,
// including its items and adjustments. Returns nil when none exists.
func (r *PostgresInvoiceRepository) FindActiveByNumber(ctx context.Context, invoiceNumber string) (*domain.Invoice, error) {
	return r.findByNumber(ctx, invoiceNumber, false)
}

// FindDeletedByNumber retrieves the most recently soft-deleted invoice with
// the given number, including its items and adjustments. Returns nil when
// none exists.
func (r *PostgresInvoiceRepository) FindDeletedByNumber(ctx context.Context, invoiceNumber string) (*domain.Invoice, error) {
	return r.findByNumber(ctx, invoiceNumber, true)
}

func (r *PostgresInvoiceRepository) findByNumber(ctx context.Context, invoiceNumber string, deleted bool) (*domain.Invoice, error) {
	condition := "deleted_at IS NULL"
	if deleted {
		condition = "deleted_at IS NOT NULL"
	}

	var invoice domain.Invoice
	err := r.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, invoice_number, issued_date, vendor_name, total_amount, created_at, updated_at, deleted_at
		FROM invoices
		WHERE invoice_number = $1 AND %s
		ORDER BY created_at DESC
		LIMIT 1
	`, condition), invoiceNumber).Scan(
		&invoice.ID, &invoice.InvoiceNumber, &invoice.IssuedDate, &invoice.VendorName,
		&invoice.TotalAmount, &invoice.CreatedAt, &invoice.UpdatedAt, &invoice.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	if err := r.loadChildren(ctx, &invoice); err != nil {
		return nil, err
	}

	return &invoice, nil
}

// loadChildren populates Items and Adjustments in their stored order
func (r *PostgresInvoiceRepository) loadChildren(ctx context.Context, invoice *domain.Invoice) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, item_id, description, quantity, unit_price, unit, amount
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position
	`, invoice.ID)
	if err != nil {
		return fmt.Errorf("failed to query invoice items: %w", err)
	}
	defer rows.Close()

	invoice.Items = []domain.InvoiceItem{}
	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(&item.ID, &item.ItemID, &item.Description, &item.Quantity, &item.UnitPrice, &item.Unit, &item.Amount); err != nil {
			return fmt.Errorf("failed to scan invoice item: %w", err)
		}
		invoice.Items = append(invoice.Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating invoice items: %w", err)
	}

	adjRows, err := r.db.Query(ctx, `
		SELECT id, description, amount
		FROM invoice_adjustments
		WHERE invoice_id = $1
		ORDER BY position
	`, invoice.ID)
	if err != nil {
		return fmt.Errorf("failed to query invoice adjustments: %w", err)
	}
	defer adjRows.Close()

	invoice.Adjustments = []domain.InvoiceAdjustment{}
	for adjRows.Next() {
		var adj domain.InvoiceAdjustment
		if err := adjRows.Scan(&adj.ID, &adj.Description, &adj.Amount); err != nil {
			return fmt.Errorf("failed to scan invoice adjustment: %w", err)
		}
		invoice.Adjustments = append(invoice.Adjustments, adj)
	}
	if err := adjRows.Err(); err != nil {
		return fmt.Errorf("error iterating invoice adjustments: %w", err)
	}

	return nil
}

// ListActive retrieves all active invoices without their items
func (r *PostgresInvoiceRepository) ListActive(ctx context.Context) ([]domain.Invoice, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_number, issued_date, vendor_name, total_amount, created_at, updated_at
		FROM invoices
		WHERE deleted_at IS NULL
		ORDER BY issued_date DESC, invoice_number
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	invoices := []domain.Invoice{}
	for rows.Next() {
		var invoice domain.Invoice
		if err := rows.Scan(
			&invoice.ID, &invoice.InvoiceNumber, &invoice.IssuedDate, &invoice.VendorName,
			&invoice.TotalAmount, &invoice.CreatedAt, &invoice.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}

	return invoices, nil
}

// Insert persists a new invoice with its items and adjustments in one
// transaction
func (r *PostgresInvoiceRepository) Insert(ctx context.Context, invoice *domain.Invoice) (*domain.Invoice, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Rollback if not committed

	err = tx.QueryRow(ctx, `
		INSERT INTO invoices (invoice_number, issued_date, vendor_name, total_amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, invoice.InvoiceNumber, invoice.IssuedDate, invoice.VendorName, invoice.TotalAmount).Scan(
		&invoice.ID, &invoice.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateInvoiceNumber
		}
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	if err := insertChildren(ctx, tx, invoice); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return invoice, nil
}

// insertChildren writes items and adjustments, recording upload order in
// the position column
func insertChildren(ctx context.Context, tx pgx.Tx, invoice *domain.Invoice) error {
	for i := range invoice.Items {
		item := &invoice.Items[i]
		err := tx.QueryRow(ctx, `
			INSERT INTO invoice_items (invoice_id, item_id, description, quantity, unit_price, unit, amount, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, invoice.ID, item.ItemID, item.Description, item.Quantity, item.UnitPrice, item.Unit, item.Amount, i).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to insert invoice item: %w", err)
		}
	}

	for i := range invoice.Adjustments {
		adj := &invoice.Adjustments[i]
		err := tx.QueryRow(ctx, `
			INSERT INTO invoice_adjustments (invoice_id, description, amount, position)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, invoice.ID, adj.Description, adj.Amount, i).Scan(&adj.ID)
		if err != nil {
			return fmt.Errorf("failed to insert invoice adjustment: %w", err)
		}
	}

	return nil
}

// SoftDelete tombstones the active invoice with the given number
func (r *PostgresInvoiceRepository) SoftDelete(ctx context.Context, invoiceNumber string) (bool, error) {
	commandTag, err := r.db.Exec(ctx, `
		UPDATE invoices
		SET deleted_at = $1
		WHERE invoice_number = $2 AND deleted_at IS NULL
	`, time.Now().UTC(), invoiceNumber)
	if err != nil {
		return false, fmt.Errorf("failed to soft delete invoice: %w", err)
	}

	return commandTag.RowsAffected() > 0, nil
}

// Restore revives a soft-deleted invoice in place, overwriting its
// financial fields and clearing the tombstone while keeping the row's
// identity and CreatedAt
func (r *PostgresInvoiceRepository) Restore(ctx context.Context, existingID int64, newData *domain.Invoice) (*domain.Invoice, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Rollback if not committed

	restored := &domain.Invoice{
		ID:            existingID,
		InvoiceNumber: newData.InvoiceNumber,
		IssuedDate:    newData.IssuedDate,
		VendorName:    newData.VendorName,
		TotalAmount:   newData.TotalAmount,
		Items:         newData.Items,
		Adjustments:   newData.Adjustments,
	}

	err = tx.QueryRow(ctx, `
		UPDATE invoices
		SET issued_date = $1, vendor_name = $2, total_amount = $3, updated_at = $4, deleted_at = NULL
		WHERE id = $5
		RETURNING created_at, updated_at
	`, newData.IssuedDate, newData.VendorName, newData.TotalAmount, time.Now().UTC(), existingID).Scan(
		&restored.CreatedAt, &restored.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateInvoiceNumber
		}
		return nil, fmt.Errorf("failed to restore invoice: %w", err)
	}

	// The revived row replaces its old line items entirely
	if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, existingID); err != nil {
		return nil, fmt.Errorf("failed to delete invoice items: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM invoice_adjustments WHERE invoice_id = $1`, existingID); err != nil {
		return nil, fmt.Errorf("failed to delete invoice adjustments: %w", err)
	}

	if err := insertChildren(ctx, tx, restored); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return restored, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
