package catalog

import (
	"context"

	"github.com/mhartlev/lending-ledger-go/ledger"
)

const (
	logMsgItemAdded     = "catalog item added"
	logMsgBorrowerAdded = "borrower registered"

	logAttrItemID     = "item_id"
	logAttrBorrowerID = "borrower_id"
	logAttrTitle      = "title"
)

// Ledger is the storage surface the catalog service needs. Both the
// Postgres and the in-memory engines satisfy it.
type Ledger interface {
	InsertItem(ctx context.Context, item ledger.Item) (int64, error)
	GetItem(ctx context.Context, itemID int64) (ledger.Item, error)
	SearchItems(ctx context.Context, title string, genre string) ([]ledger.Item, error)
	InsertBorrower(ctx context.Context, borrower ledger.Borrower) (int64, error)
	GetBorrower(ctx context.Context, borrowerID int64) (ledger.Borrower, error)
	HistoryByBorrower(ctx context.Context, borrowerID int64) ([]ledger.HistoryEntry, error)
	HistoryByItem(ctx context.Context, itemID int64) ([]ledger.HistoryEntry, error)
	MostPopularItem(ctx context.Context) (ledger.ItemStatistics, error)
	LeastPopularItem(ctx context.Context) (ledger.ItemStatistics, error)
	MostOverdueItem(ctx context.Context) (ledger.ItemStatistics, error)
}

// Service exposes the catalog's read side plus item and borrower
// registration. It never touches loan lifecycle state.
type Service struct {
	ledger Ledger
	logger ledger.Logger
}

// Option defines a functional option for configuring the Service.
type Option func(*Service)

// WithLogger configures a logger for the service. Without it the service is silent.
func WithLogger(logger ledger.Logger) Option {
	return func(service *Service) {
		service.logger = logger
	}
}

// NewService creates a catalog service on top of the given ledger.
func NewService(ledgerStore Ledger, options ...Option) *Service {
	service := &Service{ledger: ledgerStore}

	for _, option := range options {
		option(service)
	}

	return service
}

// AddItem registers a new catalog item with all copies available and
// returns its identifier.
func (s *Service) AddItem(
	ctx context.Context,
	title string,
	author string,
	isbn string,
	genre string,
	totalCopies int,
) (int64, error) {

	item, err := ledger.BuildItem(title, author, isbn, genre, totalCopies)
	if err != nil {
		return 0, err
	}

	itemID, err := s.ledger.InsertItem(ctx, item)
	if err != nil {
		return 0, err
	}

	s.logInfo(logMsgItemAdded, logAttrItemID, itemID, logAttrTitle, title)

	return itemID, nil
}

// AddBorrower registers a new borrower and returns their identifier.
func (s *Service) AddBorrower(ctx context.Context, name string, email string) (int64, error) {
	borrowerID, err := s.ledger.InsertBorrower(ctx, ledger.Borrower{Name: name, Email: email})
	if err != nil {
		return 0, err
	}

	s.logInfo(logMsgBorrowerAdded, logAttrBorrowerID, borrowerID)

	return borrowerID, nil
}

// GetItem retrieves one catalog item.
func (s *Service) GetItem(ctx context.Context, itemID int64) (ledger.Item, error) {
	return s.ledger.GetItem(ctx, itemID)
}

// Search lists catalog items matching the title and/or genre terms.
// Empty terms match everything.
func (s *Service) Search(ctx context.Context, title string, genre string) ([]ledger.Item, error) {
	return s.ledger.SearchItems(ctx, title, genre)
}

// HistoryByBorrower lists the borrower's full rental history, newest first.
// Returns ledger.ErrBorrowerNotFound for an unknown borrower.
func (s *Service) HistoryByBorrower(ctx context.Context, borrowerID int64) ([]ledger.HistoryEntry, error) {
	if _, err := s.ledger.GetBorrower(ctx, borrowerID); err != nil {
		return nil, err
	}

	return s.ledger.HistoryByBorrower(ctx, borrowerID)
}

// HistoryByItem lists the item's full rental history, newest first.
// Returns ledger.ErrItemNotFound for an unknown item.
func (s *Service) HistoryByItem(ctx context.Context, itemID int64) ([]ledger.HistoryEntry, error) {
	if _, err := s.ledger.GetItem(ctx, itemID); err != nil {
		return nil, err
	}

	return s.ledger.HistoryByItem(ctx, itemID)
}

// MostPopularItem returns the item with the highest all-time loan count.
func (s *Service) MostPopularItem(ctx context.Context) (ledger.ItemStatistics, error) {
	return s.ledger.MostPopularItem(ctx)
}

// LeastPopularItem returns the least loaned item among those loaned at
// least once.
func (s *Service) LeastPopularItem(ctx context.Context) (ledger.ItemStatistics, error) {
	return s.ledger.LeastPopularItem(ctx)
}

// MostOverdueItem returns the item whose loans were flagged overdue most often.
func (s *Service) MostOverdueItem(ctx context.Context) (ledger.ItemStatistics, error) {
	return s.ledger.MostOverdueItem(ctx)
}

func (s *Service) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
