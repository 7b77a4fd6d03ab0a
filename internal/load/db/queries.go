package db

import (
	"context"
	"database/sql"
)

const getLedgerEntry = `
SELECT target_pk FROM load_ledger WHERE kind = ? AND dedup_key = ?
`

type GetLedgerEntryParams struct {
	Kind     string
	DedupKey string
}

func (q *Queries) GetLedgerEntry(ctx context.Context, arg GetLedgerEntryParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, getLedgerEntry, arg.Kind, arg.DedupKey)
	var pk int64
	err := row.Scan(&pk)
	return pk, err
}

const createLedgerEntry = `
INSERT INTO load_ledger (kind, dedup_key, target_pk) VALUES (?, ?, ?)
`

type CreateLedgerEntryParams struct {
	Kind     string
	DedupKey string
	TargetPk int64
}

func (q *Queries) CreateLedgerEntry(ctx context.Context, arg CreateLedgerEntryParams) error {
	_, err := q.db.ExecContext(ctx, createLedgerEntry, arg.Kind, arg.DedupKey, arg.TargetPk)
	return err
}

const countLedgerEntries = `
SELECT COUNT(*) FROM load_ledger
`

func (q *Queries) CountLedgerEntries(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countLedgerEntries)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const createAuthor = `
INSERT INTO authors (name, born_date, born_location, url, bio)
VALUES (?, ?, ?, ?, ?)
`

type CreateAuthorParams struct {
	Name         string
	BornDate     string
	BornLocation string
	Url          sql.NullString
	Bio          string
}

func (q *Queries) CreateAuthor(ctx context.Context, arg CreateAuthorParams) (int64, error) {
	res, err := q.db.ExecContext(
		ctx, createAuthor,
		arg.Name, arg.BornDate, arg.BornLocation, arg.Url, arg.Bio,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const updateAuthor = `
UPDATE authors SET name = ?, born_date = ?, born_location = ?, url = ?, bio = ?
WHERE author_id = ?
`

type UpdateAuthorParams struct {
	Name         string
	BornDate     string
	BornLocation string
	Url          sql.NullString
	Bio          string
	AuthorID     int64
}

func (q *Queries) UpdateAuthor(ctx context.Context, arg UpdateAuthorParams) error {
	_, err := q.db.ExecContext(
		ctx, updateAuthor,
		arg.Name, arg.BornDate, arg.BornLocation, arg.Url, arg.Bio, arg.AuthorID,
	)
	return err
}

const createQuote = `
INSERT INTO quotes (text, author_id) VALUES (?, ?)
`

type CreateQuoteParams struct {
	Text     string
	AuthorID int64
}

func (q *Queries) CreateQuote(ctx context.Context, arg CreateQuoteParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createQuote, arg.Text, arg.AuthorID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const updateQuote = `
UPDATE quotes SET text = ?, author_id = ? WHERE quote_id = ?
`

type UpdateQuoteParams struct {
	Text     string
	AuthorID int64
	QuoteID  int64
}

func (q *Queries) UpdateQuote(ctx context.Context, arg UpdateQuoteParams) error {
	_, err := q.db.ExecContext(ctx, updateQuote, arg.Text, arg.AuthorID, arg.QuoteID)
	return err
}

const createTag = `
INSERT INTO tags (name) VALUES (?)
`

func (q *Queries) CreateTag(ctx context.Context, name string) (int64, error) {
	res, err := q.db.ExecContext(ctx, createTag, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const updateTag = `
UPDATE tags SET name = ? WHERE tag_id = ?
`

type UpdateTagParams struct {
	Name  string
	TagID int64
}

func (q *Queries) UpdateTag(ctx context.Context, arg UpdateTagParams) error {
	_, err := q.db.ExecContext(ctx, updateTag, arg.Name, arg.TagID)
	return err
}

const createQuoteTag = `
INSERT INTO quotes_tags (quote_id, tag_id) VALUES (?, ?)
ON CONFLICT (quote_id, tag_id) DO NOTHING
`

type CreateQuoteTagParams struct {
	QuoteID int64
	TagID   int64
}

func (q *Queries) CreateQuoteTag(ctx context.Context, arg CreateQuoteTagParams) error {
	_, err := q.db.ExecContext(ctx, createQuoteTag, arg.QuoteID, arg.TagID)
	return err
}

const countQuoteTags = `
SELECT COUNT(*) FROM quotes_tags
`

func (q *Queries) CountQuoteTags(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countQuoteTags)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const createBook = `
INSERT INTO books (title, price_eur, availability, rating, url)
VALUES (?, ?, ?, ?, ?)
`

type CreateBookParams struct {
	Title        string
	PriceEur     sql.NullFloat64
	Availability string
	Rating       int64
	Url          string
}

func (q *Queries) CreateBook(ctx context.Context, arg CreateBookParams) (int64, error) {
	res, err := q.db.ExecContext(
		ctx, createBook,
		arg.Title, arg.PriceEur, arg.Availability, arg.Rating, arg.Url,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const updateBook = `
UPDATE books SET title = ?, price_eur = ?, availability = ?, rating = ?, url = ?
WHERE book_id = ?
`

type UpdateBookParams struct {
	Title        string
	PriceEur     sql.NullFloat64
	Availability string
	Rating       int64
	Url          string
	BookID       int64
}

func (q *Queries) UpdateBook(ctx context.Context, arg UpdateBookParams) error {
	_, err := q.db.ExecContext(
		ctx, updateBook,
		arg.Title, arg.PriceEur, arg.Availability, arg.Rating, arg.Url, arg.BookID,
	)
	return err
}

const getBook = `
SELECT book_id, title, price_eur, availability, rating, url FROM books WHERE book_id = ?
`

type Book struct {
	BookID       int64
	Title        string
	PriceEur     sql.NullFloat64
	Availability string
	Rating       int64
	Url          string
}

func (q *Queries) GetBook(ctx context.Context, bookID int64) (Book, error) {
	row := q.db.QueryRowContext(ctx, getBook, bookID)
	var b Book
	err := row.Scan(&b.BookID, &b.Title, &b.PriceEur, &b.Availability, &b.Rating, &b.Url)
	return b, err
}

const countBooks = `
SELECT COUNT(*) FROM books
`

func (q *Queries) CountBooks(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countBooks)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const createBookstore = `
INSERT INTO bookstores (name, city, country, avg_price_eur, latitude, longitude, locality, enrichment_status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateBookstoreParams struct {
	Name             string
	City             string
	Country          string
	AvgPriceEur      sql.NullFloat64
	Latitude         sql.NullFloat64
	Longitude        sql.NullFloat64
	Locality         string
	EnrichmentStatus string
}

func (q *Queries) CreateBookstore(ctx context.Context, arg CreateBookstoreParams) (int64, error) {
	res, err := q.db.ExecContext(
		ctx, createBookstore,
		arg.Name, arg.City, arg.Country, arg.AvgPriceEur,
		arg.Latitude, arg.Longitude, arg.Locality, arg.EnrichmentStatus,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const updateBookstore = `
UPDATE bookstores SET name = ?, city = ?, country = ?, avg_price_eur = ?,
    latitude = ?, longitude = ?, locality = ?, enrichment_status = ?
WHERE store_id = ?
`

type UpdateBookstoreParams struct {
	Name             string
	City             string
	Country          string
	AvgPriceEur      sql.NullFloat64
	Latitude         sql.NullFloat64
	Longitude        sql.NullFloat64
	Locality         string
	EnrichmentStatus string
	StoreID          int64
}

func (q *Queries) UpdateBookstore(ctx context.Context, arg UpdateBookstoreParams) error {
	_, err := q.db.ExecContext(
		ctx, updateBookstore,
		arg.Name, arg.City, arg.Country, arg.AvgPriceEur,
		arg.Latitude, arg.Longitude, arg.Locality, arg.EnrichmentStatus, arg.StoreID,
	)
	return err
}

const getBookstore = `
SELECT store_id, name, city, country, avg_price_eur, latitude, longitude, locality, enrichment_status
FROM bookstores WHERE store_id = ?
`

type Bookstore struct {
	StoreID          int64
	Name             string
	City             string
	Country          string
	AvgPriceEur      sql.NullFloat64
	Latitude         sql.NullFloat64
	Longitude        sql.NullFloat64
	Locality         string
	EnrichmentStatus string
}

func (q *Queries) GetBookstore(ctx context.Context, storeID int64) (Bookstore, error) {
	row := q.db.QueryRowContext(ctx, getBookstore, storeID)
	var b Bookstore
	err := row.Scan(
		&b.StoreID, &b.Name, &b.City, &b.Country, &b.AvgPriceEur,
		&b.Latitude, &b.Longitude, &b.Locality, &b.EnrichmentStatus,
	)
	return b, err
}

const countQuotes = `
SELECT COUNT(*) FROM quotes
`

func (q *Queries) CountQuotes(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countQuotes)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const countAuthors = `
SELECT COUNT(*) FROM authors
`

func (q *Queries) CountAuthors(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countAuthors)
	var n int64
	err := row.Scan(&n)
	return n, err
}
