package logger

import "testing"

func TestIsRedactKey(t *testing.T) {
	redacted := []string{"token", "api_token", "authorization", "password", "jwt_secret", "email", "user_email"}
	for _, key := range redacted {
		if !isRedactKey(key) {
			t.Fatalf("isRedactKey(%q) = false, want true", key)
		}
	}
	clear := []string{"uuid", "queue", "job_id", "variant", "error"}
	for _, key := range clear {
		if isRedactKey(key) {
			t.Fatalf("isRedactKey(%q) = true, want false", key)
		}
	}
}

func TestSanitizeKVsRedactsSensitivePairs(t *testing.T) {
	out := sanitizeKVs([]interface{}{"email", "user@example.com", "uuid", "u1"})
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("email value = %v, want [REDACTED]", out[1])
	}
	if out[3] != "u1" {
		t.Fatalf("uuid value = %v, want u1", out[3])
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"uuid", "u1", "dangling"})
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[2] != "dangling" {
		t.Fatalf("trailing element = %v", out[2])
	}
}

func TestNewAndWith(t *testing.T) {
	log, err := New("development")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer log.Sync()

	scoped := log.With("service", "test")
	if scoped == nil || scoped.SugaredLogger == nil {
		t.Fatal("With returned unusable logger")
	}
	scoped.Info("logger smoke test", "uuid", "u1")
}
