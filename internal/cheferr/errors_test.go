package cheferr

import (
	"errors"
	"testing"
)

func TestWrapPreservesCategoryAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ErrNotFound, cause)

	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("errors.Is(err, ErrNotFound) = false")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false")
	}
	if Category(err) != ErrNotFound {
		t.Fatalf("Category(err) = %v, want ErrNotFound", Category(err))
	}
}

func TestWrapNilCauseIsNil(t *testing.T) {
	if Wrap(ErrInternal, nil) != nil {
		t.Fatal("Wrap(category, nil) should be nil")
	}
}

func TestWrapfFormatsMessage(t *testing.T) {
	err := Wrapf(ErrInvalidArgument, "bad value %d", 7)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatal("errors.Is(err, ErrInvalidArgument) = false")
	}
	if got := err.Error(); got == "" {
		t.Fatal("Error() returned empty string")
	}
}

func TestCategoryDefaultsToInternal(t *testing.T) {
	plain := errors.New("unwrapped")
	if Category(plain) != ErrInternal {
		t.Fatalf("Category(plain) = %v, want ErrInternal", Category(plain))
	}
}
