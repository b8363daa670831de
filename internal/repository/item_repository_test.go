package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"itemhub/internal/model"
	"itemhub/internal/taxonomy"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/gorm"
)

func TestItemRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `items`").WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectCommit()

	item := &model.Item{Title: "Hello", Slug: "hello", Type: "Post"}
	if err := repo.Create(context.Background(), item); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if item.ID != 9 {
		t.Fatalf("expected id 9, got %d", item.ID)
	}
	expectationsMet(t, mock)
}

func TestItemRepository_FindByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(db)

	mock.ExpectQuery("SELECT .* FROM `items` WHERE id = \\? ORDER BY .* LIMIT \\?").
		WithArgs(42, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByID(context.Background(), 42)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got: %v", err)
	}
	expectationsMet(t, mock)
}

func TestItemRepository_Update_RowsAffectedZero(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `items` SET .* WHERE id = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Update(context.Background(), &model.Item{ID: 42, Title: "Missing"})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got: %v", err)
	}
}

func TestItemRepository_FindPage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `items` WHERE `items`.`type` = \\?").
		WithArgs("Post").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(12))
	mock.ExpectQuery("SELECT \\* FROM `items` WHERE `items`.`type` = \\? ORDER BY `items`.`title` DESC LIMIT \\? OFFSET \\?").
		WithArgs("Post", 10, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "type", "created_at", "updated_at"}).
			AddRow(11, "B", "Post", now, now).
			AddRow(12, "A", "Post", now, now))

	scope := func(tx *gorm.DB) *gorm.DB { return tx.Where("`items`.`type` = ?", "Post") }
	items, total, err := repo.FindPage(context.Background(), scope, PageOptions{Offset: 10, Limit: 10, OrderBy: "title", Desc: true})
	if err != nil {
		t.Fatalf("FindPage() error: %v", err)
	}
	if total != 12 || len(items) != 2 {
		t.Fatalf("unexpected page: total=%d len=%d", total, len(items))
	}
	expectationsMet(t, mock)
}

func TestItemRepository_FindPage_EmptySkipsSelect(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(db)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `items`").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(0))

	items, total, err := repo.FindPage(context.Background(), nil, PageOptions{Limit: 10})
	if err != nil {
		t.Fatalf("FindPage() error: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Fatalf("expected empty page, got total=%d len=%d", total, len(items))
	}
	expectationsMet(t, mock)
}

func TestItemRepository_DeleteWithAssociations(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT `id` FROM `items` WHERE id = \\? ORDER BY .* LIMIT \\?").
		WithArgs(5, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec("DELETE FROM `categorizables` WHERE `categorizable_type` = \\? AND `categorizable_id` = \\?").
		WithArgs("item", 5).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM `taggables` WHERE `taggable_type` = \\? AND `taggable_id` = \\?").
		WithArgs("item", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `items` WHERE id = \\?").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.DeleteWithAssociations(context.Background(), 5, []taxonomy.Definition{categoryDef, tagDef})
	if err != nil {
		t.Fatalf("DeleteWithAssociations() error: %v", err)
	}
	expectationsMet(t, mock)
}

func TestItemRepository_DeleteWithAssociations_RollsBackOnFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewItemRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT `id` FROM `items` WHERE id = \\?").
		WithArgs(5, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec("DELETE FROM `categorizables`").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.DeleteWithAssociations(context.Background(), 5, []taxonomy.Definition{categoryDef, tagDef})
	if err == nil {
		t.Fatalf("expected error")
	}
	expectationsMet(t, mock)
}
