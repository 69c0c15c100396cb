package repo

import (
	"context"
	"fmt"

	"dava-bot/internal/convo"
)

// ListProducts returns a business's inventory snapshot, implementing
// convo.InventoryProvider.
func (r *Repository) ListProducts(ctx context.Context, businessID string) ([]convo.Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, unit_price, stock, requires_prescription, disease
		FROM inventory
		WHERE business_id = $1
		ORDER BY name`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	var products []convo.Product
	for rows.Next() {
		var p convo.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Stock, &p.RequiresPrescription, &p.Disease); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// SeedProducts inserts inventory rows for a business if the business
// has none yet. Used by the demo seed on first boot.
func (r *Repository) SeedProducts(ctx context.Context, businessID string, products []convo.Product) error {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory WHERE business_id = $1`, businessID).Scan(&count); err != nil {
		return fmt.Errorf("count inventory: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, p := range products {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO inventory (business_id, name, unit_price, stock, requires_prescription, disease)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			businessID, p.Name, p.UnitPrice, p.Stock, p.RequiresPrescription, p.Disease)
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.Name, err)
		}
	}
	r.logger.Info("seeded demo inventory", "business", businessID, "products", len(products))
	return nil
}
