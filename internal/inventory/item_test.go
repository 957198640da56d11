package inventory

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRemainingDays(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		expires time.Time
		want    int
	}{
		{"expired", t0.Add(-time.Hour), 0},
		{"exactly now", t0, 0},
		{"one hour left", t0.Add(time.Hour), 1},
		{"exactly one day", t0.Add(24 * time.Hour), 1},
		{"2.1 days rounds up", t0.Add(50*time.Hour + 24*time.Minute), 3},
		{"clamped", t0.Add(1000 * 24 * time.Hour), MaxShelfLifeDays},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Item{ExpiresAt: tt.expires}.RemainingDays(t0)
			if got != tt.want {
				t.Errorf("RemainingDays = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDefaultShelfLife(t *testing.T) {
	t.Parallel()

	tests := map[string]int{
		"乳制品":   7,
		"牛奶":    7,
		"肉类":    3,
		"鸡肉":    3,
		"海鱼":    3,
		"蔬菜":    5,
		"水果":    5,
		"熟食":    2,
		"冷冻食品":  30,
		"冰淇淋":   30,
		"Frozen": 30,
		"Dairy":  7,
		"":       7,
		"调料":    7,
	}
	for category, want := range tests {
		if got := DefaultShelfLife(category); got != want {
			t.Errorf("DefaultShelfLife(%q) = %d, want %d", category, got, want)
		}
	}
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		it, err := Prepare(Item{Name: "  鸡胸肉 ", Category: "肉类"}, t0)
		if err != nil {
			t.Fatalf("Prepare: %v", err)
		}
		if it.Name != "鸡胸肉" {
			t.Errorf("Name = %q, want trimmed", it.Name)
		}
		if it.ID == "" {
			t.Error("ID not assigned")
		}
		if it.Quantity != 1 {
			t.Errorf("Quantity = %d, want 1", it.Quantity)
		}
		if !it.AddedAt.Equal(t0) {
			t.Errorf("AddedAt = %v, want %v", it.AddedAt, t0)
		}
		if it.ShelfLifeDays != 3 || !it.ExpiresAt.Equal(t0.Add(3*day)) {
			t.Errorf("shelf life = %d, expires = %v", it.ShelfLifeDays, it.ExpiresAt)
		}
		if it.LastNotifiedRemainingDays != NeverNotified {
			t.Errorf("LastNotified = %d, want %d", it.LastNotifiedRemainingDays, NeverNotified)
		}
	})

	t.Run("explicit shelf life", func(t *testing.T) {
		t.Parallel()
		it, err := Prepare(Item{Name: "酸奶", ShelfLifeDays: 10, Quantity: 4}, t0)
		if err != nil {
			t.Fatalf("Prepare: %v", err)
		}
		if it.Quantity != 4 || !it.ExpiresAt.Equal(t0.Add(10*day)) {
			t.Errorf("got %+v", it)
		}
	})

	t.Run("explicit expiry derives shelf life", func(t *testing.T) {
		t.Parallel()
		it, err := Prepare(Item{Name: "面包", ExpiresAt: t0.Add(4*day + time.Hour)}, t0)
		if err != nil {
			t.Fatalf("Prepare: %v", err)
		}
		if it.ShelfLifeDays != 4 {
			t.Errorf("ShelfLifeDays = %d, want 4", it.ShelfLifeDays)
		}
	})

	t.Run("expiry in the past clamps to zero", func(t *testing.T) {
		t.Parallel()
		it, err := Prepare(Item{Name: "剩饭", ExpiresAt: t0.Add(-2 * day)}, t0)
		if err != nil {
			t.Fatalf("Prepare: %v", err)
		}
		if it.ShelfLifeDays != 0 {
			t.Errorf("ShelfLifeDays = %d, want 0", it.ShelfLifeDays)
		}
	})

	t.Run("long shelf life clamps", func(t *testing.T) {
		t.Parallel()
		it, err := Prepare(Item{Name: "蜂蜜", ShelfLifeDays: 3000}, t0)
		if err != nil {
			t.Fatalf("Prepare: %v", err)
		}
		if it.ShelfLifeDays != MaxShelfLifeDays {
			t.Errorf("ShelfLifeDays = %d, want %d", it.ShelfLifeDays, MaxShelfLifeDays)
		}
	})

	t.Run("keeps caller id", func(t *testing.T) {
		t.Parallel()
		it, err := Prepare(Item{ID: "fixed", Name: "蛋"}, t0)
		if err != nil || it.ID != "fixed" {
			t.Errorf("Prepare = %+v, %v", it, err)
		}
	})

	t.Run("blank name", func(t *testing.T) {
		t.Parallel()
		if _, err := Prepare(Item{Name: "   "}, t0); !errors.Is(err, ErrInvalidItem) {
			t.Errorf("err = %v, want ErrInvalidItem", err)
		}
	})
}
