package models

import (
	"testing"
	"time"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"account", func() *BaseModel {
			a := &Account{}
			return &a.BaseModel
		}},
		{"bill", func() *BaseModel {
			b := &Bill{}
			return &b.BaseModel
		}},
		{"income", func() *BaseModel {
			i := &Income{}
			return &i.BaseModel
		}},
		{"payment", func() *BaseModel {
			p := &Payment{}
			return &p.BaseModel
		}},
		{"feature_flag", func() *BaseModel {
			f := &FeatureFlag{}
			return &f.BaseModel
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := tc.model()
			if err := model.BeforeCreate(nil); err != nil {
				t.Fatalf("before create: %v", err)
			}
			if model.ID == "" {
				t.Fatal("expected ID to be generated")
			}
		})
	}
}

func TestUserBeforeCreateGeneratesID(t *testing.T) {
	u := &User{}
	if err := u.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected user ID to be generated")
	}
}

func TestAccountEntityType(t *testing.T) {
	a := &Account{AccountType: "bnpl"}
	if a.EntityType() != "bnpl" {
		t.Fatalf("expected bnpl, got %s", a.EntityType())
	}
}

func TestNextOccurrence(t *testing.T) {
	due := time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		recurrence string
		want       time.Time
	}{
		{RecurrenceWeekly, due.AddDate(0, 0, 7)},
		{RecurrenceBiweekly, due.AddDate(0, 0, 14)},
		{RecurrenceMonthly, time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC)},
		{RecurrenceYearly, time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)},
		{RecurrenceNone, due},
	}

	for _, tc := range cases {
		if got := NextOccurrence(due, tc.recurrence); !got.Equal(tc.want) {
			t.Fatalf("%s: got %s want %s", tc.recurrence, got, tc.want)
		}
	}
}
