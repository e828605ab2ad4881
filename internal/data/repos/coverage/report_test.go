package coverage

import (
	"context"
	"testing"

	"github.com/yungbote/coverage-backend/internal/data/repos/testutil"
	"github.com/yungbote/coverage-backend/internal/domain/coverage"
	"github.com/yungbote/coverage-backend/internal/pkg/dbctx"
)

func TestReportRepo(t *testing.T) {
	db := testutil.DB(t)
	repo := NewReportRepo(db, testutil.Logger(t))
	ctx := context.Background()
	scope := coverage.Scope{Organisation: "acme", Commit: "c1", File: "src/a.ts"}

	got, err := repo.GetByScope(dbctx.Context{Ctx: ctx}, scope)
	if err != nil {
		t.Fatalf("GetByScope: %v", err)
	}
	if got != nil {
		t.Fatalf("GetByScope on empty table = %+v, want nil", got)
	}

	if _, err := repo.LockOrCreate(dbctx.Context{Ctx: ctx}, scope); err == nil {
		t.Fatalf("LockOrCreate without a transaction: expected error")
	}

	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	rec, err := repo.LockOrCreate(dbc, scope)
	if err != nil {
		t.Fatalf("LockOrCreate: %v", err)
	}
	if rec.Scope() != scope || rec.RegionCount != 0 {
		t.Fatalf("placeholder = %+v", rec)
	}
	again, err := repo.LockOrCreate(dbc, scope)
	if err != nil {
		t.Fatalf("LockOrCreate again: %v", err)
	}
	if again.ID != rec.ID {
		t.Fatalf("LockOrCreate created a second row")
	}

	rec.Payload = []byte{1, 2, 3}
	rec.RegionCount = 1
	rec.Revision++
	if err := repo.Save(dbc, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reloaded, err := repo.GetByScope(dbc, scope)
	if err != nil || reloaded == nil {
		t.Fatalf("GetByScope after save: %v, %v", reloaded, err)
	}
	if string(reloaded.Payload) != "\x01\x02\x03" || reloaded.Revision != 1 {
		t.Fatalf("reloaded = %+v", reloaded)
	}

	if err := repo.DeleteByScope(dbc, scope); err != nil {
		t.Fatalf("DeleteByScope: %v", err)
	}
	if gone, _ := repo.GetByScope(dbc, scope); gone != nil {
		t.Fatalf("row survived delete")
	}
}

func TestReportRepoListScopes(t *testing.T) {
	db := testutil.DB(t)
	repo := NewReportRepo(db, testutil.Logger(t))
	ctx := context.Background()

	seed := []struct {
		scope   coverage.Scope
		regions int
	}{
		{coverage.Scope{Organisation: "acme", Commit: "c1", File: "z.ts"}, 2},
		{coverage.Scope{Organisation: "acme", Commit: "c1", File: "a.ts"}, 1},
		{coverage.Scope{Organisation: "acme", Commit: "c1", File: "empty.ts"}, 0},
		{coverage.Scope{Organisation: "acme", Commit: "c2", File: "b.ts"}, 1},
		{coverage.Scope{Organisation: "other", Commit: "c1", File: "c.ts"}, 1},
	}
	for _, s := range seed {
		tx := db.Begin()
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		rec, err := repo.LockOrCreate(dbc, s.scope)
		if err != nil {
			tx.Rollback()
			t.Fatalf("LockOrCreate %s: %v", s.scope, err)
		}
		rec.RegionCount = s.regions
		if err := repo.Save(dbc, rec); err != nil {
			tx.Rollback()
			t.Fatalf("Save %s: %v", s.scope, err)
		}
		if err := tx.Commit().Error; err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	scopes, err := repo.ListScopes(dbctx.Context{Ctx: ctx}, "acme", "c1")
	if err != nil {
		t.Fatalf("ListScopes: %v", err)
	}
	want := []coverage.Scope{
		{Organisation: "acme", Commit: "c1", File: "a.ts"},
		{Organisation: "acme", Commit: "c1", File: "z.ts"},
	}
	if len(scopes) != len(want) {
		t.Fatalf("ListScopes = %v, want %v", scopes, want)
	}
	for i := range want {
		if scopes[i] != want[i] {
			t.Fatalf("ListScopes[%d] = %v, want %v", i, scopes[i], want[i])
		}
	}
}
