package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-autograder/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Evaluation{}, &models.EvaluationReport{}))
	return db
}

func TestEvaluationRepositoryCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvaluationRepository(db)
	ctx := context.Background()

	evaluation := models.Evaluation{
		Reference:   "5f1c7a8e-0000-4000-8000-000000000001",
		StudentID:   7,
		Language:    "python",
		Source:      "print('hi')",
		Status:      models.EvaluationStatusCompleted,
		HasSongList: 1,
		SongsValid:  3,
		SongLengths: "20 18 22",
		Reports: []models.EvaluationReport{
			{Category: "rubric", Payload: datatypes.JSON(`{"songs_valid":3}`)},
			{Category: "complexity", Payload: datatypes.JSON(`{"total":95}`)},
		},
	}
	require.NoError(t, repo.Create(ctx, &evaluation))
	require.NotZero(t, evaluation.ID)

	stored, err := repo.GetByID(ctx, evaluation.ID)
	require.NoError(t, err)
	require.Equal(t, "20 18 22", stored.SongLengths)
	require.Len(t, stored.Reports, 2)
	require.Equal(t, "rubric", stored.Reports[0].Category)
	require.JSONEq(t, `{"total":95}`, string(stored.Reports[1].Payload))

	byReference, err := repo.GetByReference(ctx, evaluation.Reference)
	require.NoError(t, err)
	require.Equal(t, evaluation.ID, byReference.ID)

	_, err = repo.GetByID(ctx, 999)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestEvaluationRepositoryListFiltersAndSorts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvaluationRepository(db)
	ctx := context.Background()

	now := time.Now()
	rows := []models.Evaluation{
		{Reference: "a", StudentID: 1, Language: "python", Status: models.EvaluationStatusCompleted, Source: "x", CreatedAt: now.Add(-3 * time.Hour)},
		{Reference: "b", StudentID: 1, Language: "python", Status: models.EvaluationStatusRejected, Source: "y", CreatedAt: now.Add(-2 * time.Hour)},
		{Reference: "c", StudentID: 2, Language: "javascript", Status: models.EvaluationStatusCompleted, Source: "z", CreatedAt: now.Add(-1 * time.Hour)},
	}
	for i := range rows {
		require.NoError(t, repo.Create(ctx, &rows[i]))
	}

	all, total, err := repo.List(ctx, EvaluationQuery{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Equal(t, "c", all[0].Reference, "expected newest record first")
	require.Empty(t, all[0].Source)

	byStudent, total, err := repo.List(ctx, EvaluationQuery{StudentID: 1, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, byStudent, 2)

	completed, total, err := repo.List(ctx, EvaluationQuery{Status: "COMPLETED", Limit: 1})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, completed, 1)
	require.Equal(t, "c", completed[0].Reference)
}
