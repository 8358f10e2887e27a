package store

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCreateAndVerifyOperator(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	token, err := s.CreateOperator(ctx, "exit-dashboard")
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	if !strings.Contains(token, ".") {
		t.Fatalf("token = %q, want id.secret format", token)
	}

	op, err := s.VerifyOperatorToken(ctx, token)
	if err != nil {
		t.Fatalf("VerifyOperatorToken: %v", err)
	}
	if op.Name != "exit-dashboard" {
		t.Errorf("Name = %q, want %q", op.Name, "exit-dashboard")
	}
}

func TestVerifyOperatorTokenWrongSecret(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	token, err := s.CreateOperator(ctx, "pos-terminal")
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}

	id, _, _ := strings.Cut(token, ".")
	if _, err := s.VerifyOperatorToken(ctx, id+".wrong"); !errors.Is(err, ErrNotFound) {
		t.Errorf("VerifyOperatorToken = %v, want ErrNotFound", err)
	}
}

func TestVerifyOperatorTokenMalformed(t *testing.T) {
	s := testStore(t)
	for _, token := range []string{"", "nodot", ".", "id.", ".secret"} {
		if _, err := s.VerifyOperatorToken(context.Background(), token); !errors.Is(err, ErrNotFound) {
			t.Errorf("VerifyOperatorToken(%q) = %v, want ErrNotFound", token, err)
		}
	}
}

func TestCreateOperatorEmptyName(t *testing.T) {
	s := testStore(t)
	if _, err := s.CreateOperator(context.Background(), "  "); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestDeleteOperator(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	token, err := s.CreateOperator(ctx, "temp")
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	if err := s.DeleteOperator(ctx, "temp"); err != nil {
		t.Fatalf("DeleteOperator: %v", err)
	}
	if _, err := s.VerifyOperatorToken(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Errorf("VerifyOperatorToken after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteOperator(ctx, "temp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteOperator twice = %v, want ErrNotFound", err)
	}
}
