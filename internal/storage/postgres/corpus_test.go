package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/program-crawler/internal/search"
)

func TestCorpusReplace(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	corpus, err := NewCorpus(mock, "")
	require.NoError(t, err)

	docs := []search.Document{
		{ID: "1", Fields: map[string]any{"program_name": "BSc"}, Embedding: []float64{1, 0}},
		{ID: "2", Fields: map[string]any{"program_name": "MBA"}},
	}
	insert := regexp.QuoteMeta("INSERT INTO program_documents (position, doc_id, fields, embedding)")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM program_documents").WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(insert).
		WithArgs(0, "1", []byte(`{"program_name":"BSc"}`), []float64{1, 0}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(insert).
		WithArgs(1, "2", []byte(`{"program_name":"MBA"}`), []float64(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, corpus.Replace(context.Background(), docs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorpusReplaceRollsBack(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	corpus, err := NewCorpus(mock, "docs")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM docs").WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	err = corpus.Replace(context.Background(), []search.Document{{ID: "1"}})
	require.ErrorContains(t, err, "locked")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorpusDocuments(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	corpus, err := NewCorpus(mock, "")
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"doc_id", "fields", "embedding"}).
		AddRow("1", []byte(`{"program_name":"BSc","university":"UOL"}`), []float64{0.6, 0.8})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT doc_id, fields, embedding FROM program_documents ORDER BY position")).
		WillReturnRows(rows)

	docs, err := corpus.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "UOL", docs[0].Fields["university"])
	require.Equal(t, []float64{0.6, 0.8}, docs[0].Embedding)
	require.NoError(t, mock.ExpectationsWereMet())
}
