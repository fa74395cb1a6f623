package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/bookstore/internal/model"
)

// CreateBook добавляет книгу в каталог.
func (r *PostgresRepository) CreateBook(ctx context.Context, b model.Book) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO books (title, author, price, stock) VALUES ($1, $2, $3, $4) RETURNING id`,
		b.Title, b.Author, decimalToCents(b.Price), b.Stock,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert book: %w", err)
	}
	return id, nil
}

// ListBooks возвращает каталог книг.
func (r *PostgresRepository) ListBooks(ctx context.Context) ([]model.Book, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, author, price, stock FROM books ORDER BY title, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select books: %w", err)
	}
	defer rows.Close()

	var books []model.Book
	for rows.Next() {
		var (
			b          model.Book
			priceCents int64
		)
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &priceCents, &b.Stock); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		b.Price = centsToDecimal(priceCents)
		books = append(books, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return books, nil
}
