package history

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryStoreRecent(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()
	ex := uuid.New()
	for _, text := range []string{"a", "b", "c", "d"} {
		if err := s.Save(ctx, NewTurn(ex, RoleUser, SourceText, text)); err != nil {
			t.Fatal(err)
		}
	}

	all, _ := s.Recent(ctx, 0)
	if len(all) != 3 || all[0].Content != "b" || all[2].Content != "d" {
		t.Fatalf("ring should keep the last 3 oldest first, got %+v", all)
	}

	last, _ := s.Recent(ctx, 2)
	if len(last) != 2 || last[0].Content != "c" {
		t.Fatalf("Recent(2) = %+v", last)
	}

	last[0].Content = "mutated"
	again, _ := s.Recent(ctx, 2)
	if again[0].Content != "c" {
		t.Fatal("Recent must return a copy")
	}
}

func TestNewTurn(t *testing.T) {
	ex := uuid.New()
	tr := NewTurn(ex, RoleAssistant, SourceVoice, "hi")
	if tr.ID == uuid.Nil || tr.ExchangeID != ex || tr.CreatedAt.IsZero() {
		t.Fatalf("turn = %+v", tr)
	}
}

func TestNewStoreWithoutDatabase(t *testing.T) {
	s, err := NewStore(context.Background(), "  ")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("store = %T, want *MemoryStore", s)
	}
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("LADYBOT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LADYBOT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	tr := NewTurn(uuid.New(), RoleUser, SourceFile, "from postgres")
	if err := s.Save(ctx, tr); err != nil {
		t.Fatal(err)
	}
	got, err := s.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != tr.ID || got[0].Source != SourceFile {
		t.Fatalf("Recent = %+v", got)
	}
}
