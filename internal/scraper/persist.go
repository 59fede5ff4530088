package scraper

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/maltedev/book-price-scraper/internal/models"
	"github.com/maltedev/book-price-scraper/internal/parser"
)

// Reconcile folds every persisted record sharing an ISBN into one, then
// merges the fresh addition on top. The first persisted record's identity
// survives.
func Reconcile(persisted []*models.Book, addition *models.Book) *models.Book {
	if len(persisted) == 0 {
		return (&models.Book{}).Merge(addition)
	}

	merged := persisted[0]
	for _, b := range persisted[1:] {
		merged = merged.Merge(b)
	}
	return merged.Merge(addition)
}

// PersistOffer stores the price point and the reconciled book in a single
// unit of work and returns the saved book.
func PersistOffer(ctx context.Context, store ProductStore, result parser.Result) (*models.Book, error) {
	if !result.Book.IsValid() || result.PricePoint == nil {
		return nil, fmt.Errorf("cannot persist incomplete offer")
	}

	var saved *models.Book
	err := store.UnitOfWork(ctx, func(tx ProductTx) error {
		pp := result.PricePoint
		if err := tx.SavePricePoint(ctx, pp); err != nil {
			return err
		}

		candidate := *result.Book
		candidate.ID = ""
		candidate.BestOffer = pp
		candidate.PricePointIDs = []string{pp.ID}

		persisted, err := tx.FindByISBN(ctx, candidate.ISBN)
		if err != nil {
			return err
		}

		merged := Reconcile(persisted, &candidate)
		if merged.ID == "" {
			merged.ID = uuid.New().String()
		}

		var duplicates []string
		for _, b := range persisted {
			if b.ID != merged.ID {
				duplicates = append(duplicates, b.ID)
			}
		}
		if err := tx.DeleteBooks(ctx, duplicates); err != nil {
			return err
		}
		if err := tx.SaveBook(ctx, merged); err != nil {
			return err
		}

		saved = merged
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist offer for isbn %s: %w", result.Book.ISBN, err)
	}

	return saved, nil
}
