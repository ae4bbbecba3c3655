package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/program-crawler/internal/crawler"
)

func TestResultStoreAppend(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResultStore(mock, "")
	require.NoError(t, err)

	rec := crawler.NewFailureRecord(crawler.Listing{DataID: "42", ProgramName: "MBA"}, crawler.PermanentFailureMessage(5))
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO program_results (data_id, failed, record)")).
		WithArgs("42", true, data).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Append(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultStoreAppendError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResultStore(mock, "results")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO results").WillReturnError(errors.New("conn reset"))
	err = store.Append(context.Background(), crawler.NewFailureRecord(crawler.Listing{}, "x"))
	require.ErrorContains(t, err, "conn reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultStoreReadAll(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResultStore(mock, "program_results")
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"record"}).
		AddRow([]byte(`{"data_id":"1","program_name":"BSc"}`)).
		AddRow([]byte(`{"data_id":"2","error":"Failed after 5 global retry attempts"}`))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT record FROM program_results ORDER BY id")).WillReturnRows(rows)

	all, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "BSc", all[0]["program_name"])
	require.Equal(t, "Failed after 5 global retry attempts", all[1]["error"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultStoreSchemaAndReset(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResultStore(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS program_results").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("TRUNCATE program_results").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, store.Reset(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewResultStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewResultStore(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewResultStore(mock, "results; DROP TABLE x")
	require.Error(t, err)
}
