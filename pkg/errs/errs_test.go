package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("profile", "abc123")

	expected := `profile "abc123" not found`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to wrap ErrNotFound")
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound should return true")
	}
}

func TestNotFoundError_NoID(t *testing.T) {
	err := NewNotFoundError("payment", "")

	expected := "payment not found"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestConflictError(t *testing.T) {
	err := NewConflictError("profile", "telegram_id", "duplicate key value")

	if !errors.Is(err, ErrConflict) {
		t.Error("expected error to wrap ErrConflict")
	}
	if !IsConflict(err) {
		t.Error("IsConflict should return true")
	}

	expected := `profile "telegram_id" conflicts: duplicate key value`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestRemoteError(t *testing.T) {
	err := NewRemoteError(500, "XX000", "internal error")

	if !IsRemote(err) {
		t.Error("IsRemote should return true")
	}
	if err.Error() != "remote error XX000: internal error" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatal("expected errors.As to succeed")
	}
	if re.Status != 500 {
		t.Errorf("expected Status 500, got %d", re.Status)
	}
}

func TestRemoteError_NoMessage(t *testing.T) {
	err := NewRemoteError(502, "", "")
	if err.Error() != "remote error: status 502" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestConfigurationError(t *testing.T) {
	err := NewConfigurationError("SUPABASE_URL", "")

	expected := "SUPABASE_URL: is required"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !IsConfiguration(err) {
		t.Error("IsConfiguration should return true")
	}
}

func TestUploadError(t *testing.T) {
	cause := fmt.Errorf("status 503")
	err := NewUploadError("payments", "qr-codes/p1.png", cause)

	if !IsUpload(err) {
		t.Error("IsUpload should return true")
	}
	if err.Cause() != cause {
		t.Error("Cause should return the wrapped error")
	}
	if err.Error() != "upload payments/qr-codes/p1.png: status 503" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestRequiredError(t *testing.T) {
	err := RequiredError("client_id")

	if err.Error() != "client_id: is required" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !IsValidation(err) {
		t.Error("IsValidation should return true for RequiredError")
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrNotFound, ErrConflict, ErrRemote, ErrConfiguration, ErrUpload, ErrInvalidInput}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinel %v should not match %v", a, b)
			}
		}
	}
}
