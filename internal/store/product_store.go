package store

import (
	"context"
	"fmt"

	"github.com/webberzone/gluelink/internal/domain"
)

// LoadProducts reads every product configuration entry, keyed by product
// id. The webhook processor treats the result as a read-only snapshot for
// the life of the process.
func (s *PostgresStore) LoadProducts(ctx context.Context) (map[int64]domain.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, slug, public_key, secret_key, free_form_ids, free_tag_ids, paid_form_ids, paid_tag_ids
		FROM gluelink_products
	`)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]domain.Product)
	for rows.Next() {
		var p domain.Product
		err := rows.Scan(&p.ID, &p.Slug, &p.PublicKey, &p.SecretKey,
			&p.FreeFormIDs, &p.FreeTagIDs, &p.PaidFormIDs, &p.PaidTagIDs)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading products: %w", err)
	}

	return products, nil
}
