package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/apmec/internal/model"
)

func newTestMESService(t *testing.T, db *mockDB) *MESService {
	t.Helper()
	events := NewEventService(db)
	meads := NewMEADService(db, events)
	mesds := NewMESDService(db, events)
	pool := NewPool(context.Background(), 2, zerolog.Nop())
	return NewMESService(db, events, mesds, meads, newTestMEAService(t, db), pool, zerolog.Nop())
}

func mesRow(id, status string, meaIDs, mgmtURLs []byte) *mockRow {
	now := time.Now().UTC()
	return &mockRow{scanFunc: scanValues(
		id, "tenant-1", "chain-svc", "", "mesd-1", "vim-1", meaIDs, mgmtURLs, status, nil, now, now,
	)}
}

func TestMESGetByIDDecodesConstituents(t *testing.T) {
	db := &mockDB{}
	s := newTestMESService(t, db)

	db.On("QueryRow", mock.Anything, sqlContaining("FROM mess WHERE id"), mock.Anything).
		Return(mesRow("mes-1", model.StatusActive,
			[]byte(`{"mead-a":"mea-1","mead-b":"mea-2"}`),
			[]byte(`{"mead-a":"{\"VDU1\":\"192.0.2.1\"}"}`))).Once()

	mes, err := s.GetByID(context.Background(), "mes-1")
	require.NoError(t, err)
	assert.Equal(t, "mea-1", mes.MEAIDs["mead-a"])
	assert.Equal(t, "mea-2", mes.MEAIDs["mead-b"])
	assert.Contains(t, mes.MgmtURLs["mead-a"], "VDU1")
	db.AssertExpectations(t)
}

func TestMESGetByIDMissingIsNotFound(t *testing.T) {
	db := &mockDB{}
	s := newTestMESService(t, db)

	db.On("QueryRow", mock.Anything, sqlContaining("FROM mess WHERE id"), mock.Anything).
		Return(noRow()).Once()

	_, err := s.GetByID(context.Background(), "mes-9")
	require.True(t, IsNotFound(err))
}

func TestMESCreateRequiresName(t *testing.T) {
	db := &mockDB{}
	s := newTestMESService(t, db)

	_, err := s.Create(context.Background(), CreateMESRequest{TenantID: "tenant-1"})
	require.True(t, IsValidation(err))
}

func TestMESCreateFailsOnDanglingConstituentName(t *testing.T) {
	db := &mockDB{}
	s := newTestMESService(t, db)

	// The composed descriptor references mead-a, which does not exist for
	// this tenant, so nothing must be inserted.
	db.On("QueryRow", mock.Anything, sqlContaining("FROM mesds WHERE id"), mock.Anything).
		Return(&mockRow{scanFunc: scanValues(
			"mesd-1", "tenant-1", "chain", "", []string{"mead-a"},
			model.TemplateSourceOnboarded, time.Now().UTC(), time.Now().UTC(),
		)}).Once()
	db.On("Query", mock.Anything, sqlContaining("FROM mesd_attributes"), mock.Anything).
		Return(newEmptyMockRows(), nil).Once()
	db.On("QueryRow", mock.Anything, sqlContaining("FROM meads WHERE tenant_id"), mock.Anything).
		Return(noRow()).Once()

	_, err := s.Create(context.Background(), CreateMESRequest{
		TenantID: "tenant-1",
		Name:     "chain-svc",
		MESDID:   "mesd-1",
		VIMID:    "vim-1",
	})
	require.True(t, IsNotFound(err))
	db.AssertNotCalled(t, "Exec", mock.Anything, sqlContaining("INSERT INTO mess"), mock.Anything)
}

func TestMESDeleteConflictsWhilePending(t *testing.T) {
	db := &mockDB{}
	s := newTestMESService(t, db)

	db.On("QueryRow", mock.Anything, sqlContaining("UPDATE mess SET status"), mock.Anything).
		Return(noRow()).Once()
	db.On("QueryRow", mock.Anything, sqlContaining("FROM mess WHERE id"), mock.Anything).
		Return(mesRow("mes-1", model.StatusPendingCreate, nil, nil)).Once()

	err := s.Delete(context.Background(), "mes-1")
	require.True(t, IsConflict(err))
}
