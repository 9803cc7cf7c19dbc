package catalog_repo

import (
	"testing"

	"pharmapos/internal/core/apperror"
)

func TestParseOrderBy(t *testing.T) {
	repo := NewBaseCatalogRepo[any](nil, "test_table", []string{"id", "mobile"}, func() any { return nil })

	tests := []struct {
		name    string
		orderBy string
		want    string
		wantErr bool
	}{
		{name: "empty defaults to name", orderBy: "", want: "name ASC"},
		{name: "plain field", orderBy: "mobile", want: "mobile ASC"},
		{name: "descending", orderBy: "-mobile", want: "mobile DESC"},
		{name: "explicit ascending", orderBy: "+name", want: "name ASC"},
		{name: "unknown column rejected", orderBy: "total_spent; DROP TABLE", wantErr: true},
		{name: "bare minus rejected", orderBy: "-", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.parseOrderBy(tt.orderBy)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				if !apperror.IsAppError(err) {
					t.Errorf("expected AppError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseOrderBy failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("want %q, got %q", tt.want, got)
			}
		})
	}
}

func TestBaseSelect_SQL(t *testing.T) {
	repo := NewBaseCatalogRepo[any](nil, "cat_customers", []string{"id", "code", "name"}, func() any { return nil })

	sql, _, err := repo.baseSelect().ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	want := "SELECT id, code, name FROM cat_customers"
	if sql != want {
		t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", want, sql)
	}
}
