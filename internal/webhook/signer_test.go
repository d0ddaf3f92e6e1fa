package webhook

import "testing"

func TestSignDeterministic(t *testing.T) {
	body := []byte(`{"event":"session.ready"}`)
	sig1 := Sign("secret", body)
	sig2 := Sign("secret", body)
	if sig1 != sig2 {
		t.Error("Expected identical signatures for same input")
	}
	if len(sig1) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(sig1))
	}
}

func TestSignKnownVector(t *testing.T) {
	// echo -n 'hello' | openssl dgst -sha256 -hmac 'key'
	got := Sign("key", []byte("hello"))
	want := "9307b3b915efb5171ff14d8cb55fbcc798c6c0ef1456d66ded1a6aa723a58b7b"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"message.received"}`)
	sig := Sign("secret", body)
	if !VerifySignature("secret", body, sig) {
		t.Error("Expected valid signature to verify")
	}
	if VerifySignature("other", body, sig) {
		t.Error("Expected wrong secret to fail verification")
	}
	if VerifySignature("secret", []byte("tampered"), sig) {
		t.Error("Expected tampered body to fail verification")
	}
}
