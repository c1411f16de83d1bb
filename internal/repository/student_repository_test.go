package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func studentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "teacher_id", "org_id", "full_name", "grade_level", "active", "created_at", "updated_at"}).
		AddRow("stu-1", "t1", "org-1", "Aisha", "10", true, time.Now(), time.Now())
}

func TestStudentRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.id, s.teacher_id, s.org_id, s.full_name, s.grade_level, s.active, s.created_at, s.updated_at\n        FROM students s WHERE s.teacher_id = $1 ORDER BY s.created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("t1").
		WillReturnRows(studentRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students s WHERE s.teacher_id = $1")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{TeacherID: "t1"})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListFiltersAndSort(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	active := true
	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.id, s.teacher_id, s.org_id, s.full_name, s.grade_level, s.active, s.created_at, s.updated_at\n        FROM students s WHERE s.teacher_id = $1 AND s.grade_level = $2 AND s.active = $3 AND LOWER(s.full_name) LIKE $4 ORDER BY s.full_name ASC LIMIT 10 OFFSET 10")).
		WithArgs("t1", "10", true, "%ais%").
		WillReturnRows(studentRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students s WHERE s.teacher_id = $1 AND s.grade_level = $2 AND s.active = $3 AND LOWER(s.full_name) LIKE $4")).
		WithArgs("t1", "10", true, "%ais%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	students, total, err := repo.List(context.Background(), models.StudentFilter{
		TeacherID:  "t1",
		GradeLevel: "10",
		Active:     &active,
		Search:     "Ais",
		SortBy:     "full_name",
		SortOrder:  "asc",
		Page:       2,
		PageSize:   10,
	})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListAll(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE teacher_id = $1 AND active = true ORDER BY full_name ASC")).
		WithArgs("t1").
		WillReturnRows(studentRows())

	students, err := repo.ListAll(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, "Aisha", students[0].FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	student := &models.Student{TeacherID: "t1", OrgID: "org-1", FullName: "Budi", GradeLevel: "11", Active: true}
	err := repo.Create(context.Background(), student)
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpdateMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("UPDATE students SET").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Student{ID: "ghost", TeacherID: "t1", FullName: "Nobody"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDeactivate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("UPDATE students SET active = false").
		WithArgs("stu-1", "t1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Deactivate(context.Background(), "stu-1", "t1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
